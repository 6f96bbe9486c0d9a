package handler

import (
	"net/http"
	"testing"

	"github.com/use-agent/sitegrade/models"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{models.ErrCodeInvalidURL, http.StatusBadRequest},
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeUnauthorized, http.StatusUnauthorized},
		{models.ErrCodeQuotaExceeded, http.StatusTooManyRequests},
		{models.ErrCodeRateLimited, http.StatusTooManyRequests},
		{models.ErrCodeDNSFailure, http.StatusBadGateway},
		{models.ErrCodeNavigation, http.StatusBadGateway},
		{models.ErrCodeHTTPStatus, http.StatusBadGateway},
		{models.ErrCodeBrowserCrash, http.StatusServiceUnavailable},
		{models.ErrCodeQuotaUnavailable, http.StatusServiceUnavailable},
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeCancelled, http.StatusRequestTimeout},
		{models.ErrCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := mapErrorToStatus(models.NewAnalysisError(tt.code, "x", nil)); got != tt.want {
				t.Errorf("mapErrorToStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
