package models

import "time"

// RenderRequest describes a single page render.
type RenderRequest struct {
	URL     string
	Timeout time.Duration
	Stealth bool
}

// RenderedPage is the output of a successful render: the final DOM plus
// the telemetry collected while loading it.
type RenderedPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string

	// VisibleText is the browser's innerText with script/style removed.
	// Engines that do not execute JavaScript leave it empty.
	VisibleText string

	Title    string
	LoadTime time.Duration
	PageSize int64
	Engine   string
}

// PageSnapshot is the normalized, analyzer-ready view of a rendered page.
// It is built once per analysis and never mutated afterwards.
type PageSnapshot struct {
	URL             string          `json:"url"`
	FinalURL        string          `json:"finalUrl"`
	FinalStatusCode int             `json:"finalStatusCode"`
	RawHTML         string          `json:"-"`
	VisibleText     string          `json:"visibleText"`
	Title           string          `json:"title"`
	MetaDescription string          `json:"metaDescription"`
	Headings        Headings        `json:"headings"`
	Images          ImageStats      `json:"images"`
	Links           LinkStats       `json:"links"`
	Lists           int             `json:"lists"`
	StructuredData  []any           `json:"structuredData"`
	Performance     PagePerformance `json:"performance"`
}

// Headings groups heading texts by level, in document order.
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
}

// ImageStats summarises the page's <img> elements.
type ImageStats struct {
	Total      int     `json:"total"`
	WithoutAlt int     `json:"withoutAlt"`
	List       []Image `json:"list"`
}

// Image is a single <img> element.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// LinkStats holds deduplicated, absolute link targets split by hostname.
type LinkStats struct {
	Internal []string `json:"internal"`
	External []string `json:"external"`
	Total    int      `json:"total"`
}

// PagePerformance carries the render telemetry.
type PagePerformance struct {
	LoadTimeMs    int64 `json:"loadTimeMs"`
	PageSizeBytes int64 `json:"pageSizeBytes"`
}

// EffectiveURL returns the URL the page was finally served from.
func (s *PageSnapshot) EffectiveURL() string {
	if s.FinalURL != "" {
		return s.FinalURL
	}
	return s.URL
}

// HasSchemaType reports whether any structured-data block declares one of
// the given schema.org types. Both "@type": "X" and "@type": ["X", ...]
// are recognised, as are top-level arrays and "@graph" containers.
func (s *PageSnapshot) HasSchemaType(types ...string) bool {
	want := make(map[string]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	for _, block := range s.StructuredData {
		if blockHasType(block, want) {
			return true
		}
	}
	return false
}

func blockHasType(block any, want map[string]struct{}) bool {
	switch v := block.(type) {
	case []any:
		for _, item := range v {
			if blockHasType(item, want) {
				return true
			}
		}
	case map[string]any:
		switch t := v["@type"].(type) {
		case string:
			if _, ok := want[t]; ok {
				return true
			}
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					if _, hit := want[s]; hit {
						return true
					}
				}
			}
		}
		if graph, ok := v["@graph"]; ok {
			return blockHasType(graph, want)
		}
	}
	return false
}
