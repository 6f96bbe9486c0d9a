package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitegrade/api/middleware"
	"github.com/use-agent/sitegrade/models"
	"github.com/use-agent/sitegrade/pipeline"
)

// Analyze returns a handler for POST /api/v1/analyze.
//
// Orchestration flow:
//  1. Parse the request body.
//  2. Resolve the caller set by the identity middleware.
//  3. Service.RunAnalysis → scored result + quota status.
//  4. Respond 200, or map the error code to an HTTP status.
func Analyze(svc *pipeline.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.AnalyzeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Caller ───────────────────────────────────────────────
		identifier, authenticated := middleware.Caller(c)

		// ── 3. Analyze ──────────────────────────────────────────────
		analysis, err := svc.RunAnalysis(c.Request.Context(), req.URL, identifier, authenticated)
		if err != nil {
			respondError(c, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			})
			return
		}

		// ── 4. Respond ──────────────────────────────────────────────
		status := analysis.Quota
		c.JSON(http.StatusOK, models.AnalyzeResponse{
			Success:     true,
			Result:      analysis.Result,
			Quota:       &status,
			Timing:      analysis.Timing,
			CacheStatus: analysis.CacheStatus,
		})
	}
}

// respondError maps an analysis error to the correct HTTP status code and
// writes a structured JSON error response. Quota rejections carry the
// caller's status so clients can show when the allowance resets.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	var qe *models.QuotaExceededError
	if errors.As(err, &qe) {
		status := qe.Status
		c.JSON(http.StatusTooManyRequests, models.AnalyzeResponse{
			Success: false,
			Quota:   &status,
			Error:   qe.ToDetail(),
			Timing:  timing,
		})
		return
	}

	var analysisErr *models.AnalysisError
	if !errors.As(err, &analysisErr) {
		analysisErr = models.NewAnalysisError(models.ErrCodeInternal, "internal error", err)
	}

	c.JSON(mapErrorToStatus(analysisErr), models.AnalyzeResponse{
		Success: false,
		Error:   analysisErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.AnalysisError) int {
	switch e.Code {
	case models.ErrCodeInvalidURL, models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeQuotaExceeded, models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeDNSFailure, models.ErrCodeNavigation, models.ErrCodeHTTPStatus:
		return http.StatusBadGateway // 502
	case models.ErrCodeBrowserCrash, models.ErrCodeQuotaUnavailable:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeCancelled:
		return http.StatusRequestTimeout // 408
	default:
		return http.StatusInternalServerError // 500
	}
}
