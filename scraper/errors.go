package scraper

import (
	"context"
	"errors"
	"strings"

	"github.com/go-rod/rod"
	"github.com/use-agent/sitegrade/models"
)

// Chromium net error names that mean the host could not be resolved.
var dnsReasons = []string{
	"ERR_NAME_NOT_RESOLVED",
	"ERR_NAME_RESOLUTION_FAILED",
	"ERR_ADDRESS_UNREACHABLE",
}

// categorizeError wraps raw errors into typed AnalysisErrors so the API
// layer can map them to HTTP status codes. ctx is the render context; when
// it has expired the error is reported as a timeout or a cancellation
// regardless of how Rod surfaced it.
func categorizeError(ctx context.Context, err error, msg string) *models.AnalysisError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return models.NewAnalysisError(models.ErrCodeTimeout, "the page took too long to load", err)
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return models.NewAnalysisError(models.ErrCodeCancelled, "the analysis was cancelled", err)
	}

	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		for _, reason := range dnsReasons {
			if strings.Contains(navErr.Reason, reason) {
				return models.NewAnalysisError(models.ErrCodeDNSFailure, "the domain name could not be resolved", err)
			}
		}
		return models.NewAnalysisError(models.ErrCodeNavigation, msg+": "+navErr.Reason, err)
	}
	return models.NewAnalysisError(models.ErrCodeNavigation, msg, err)
}
