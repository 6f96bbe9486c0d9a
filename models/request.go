package models

import (
	"net/url"
	"strings"
)

// AnalyzeRequest is the payload for POST /api/v1/analyze.
type AnalyzeRequest struct {
	// URL is the page to analyze. Required; must be absolute http(s).
	URL string `json:"url" binding:"required"`
}

// ValidateURL checks that raw is a well-formed absolute http or https URL
// with a host. It returns the parsed URL or an INVALID_URL AnalysisError.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, NewAnalysisError(ErrCodeInvalidURL, "a URL is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, NewAnalysisError(ErrCodeInvalidURL, "the URL could not be parsed", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NewAnalysisError(ErrCodeInvalidURL, "the URL must start with http:// or https://", nil)
	}
	if u.Hostname() == "" {
		return nil, NewAnalysisError(ErrCodeInvalidURL, "the URL must include a host name", nil)
	}
	return u, nil
}
