package models

// AnalyzeResponse is the response for POST /api/v1/analyze.
type AnalyzeResponse struct {
	// Success indicates whether the analysis completed.
	Success bool `json:"success"`

	// Result is populated only when Success is true.
	Result *AnalysisResult `json:"result,omitempty"`

	// Quota reports the caller's allowance as observed before this analysis.
	Quota *QuotaStatus `json:"quota,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the render was served from cache.
	// Values: "hit", "miss", or empty (caching disabled).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// AnalysesResponse is the response for GET /api/v1/analyses.
type AnalysesResponse struct {
	Success  bool              `json:"success"`
	Analyses []*AnalysisResult `json:"analyses,omitempty"`
	Error    *ErrorDetail      `json:"error,omitempty"`
}

// QuotaResponse is the response for GET /api/v1/quota.
type QuotaResponse struct {
	Identifier    string       `json:"identifier"`
	Authenticated bool         `json:"authenticated"`
	Quota         QuotaStatus  `json:"quota"`
	Usage         *QuotaRecord `json:"usage,omitempty"`
	Error         *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// RenderMs is the time spent rendering the page.
	RenderMs int64 `json:"render_ms"`

	// AnalysisMs is the time spent extracting and scoring.
	AnalysisMs int64 `json:"analysis_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	BrowserStats BrowserStats `json:"browser_stats"`
	Version      string       `json:"version"`
}

// BrowserStats reports the state of the shared browser process.
type BrowserStats struct {
	Running        bool `json:"running"`
	MaxContexts    int  `json:"max_contexts"`
	ActiveContexts int  `json:"active_contexts"`
	BrowserPID     int  `json:"browser_pid"`
	Renders        int  `json:"renders"`
}
