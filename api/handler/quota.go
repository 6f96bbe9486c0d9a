package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitegrade/api/middleware"
	"github.com/use-agent/sitegrade/models"
	"github.com/use-agent/sitegrade/quota"
)

// Quota returns a handler for GET /api/v1/quota. It reports the caller's
// allowance and usage without reserving anything.
func Quota(tracker *quota.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier, authenticated := middleware.Caller(c)
		resp := models.QuotaResponse{
			Identifier:    identifier,
			Authenticated: authenticated,
		}

		rec, err := tracker.Usage(c.Request.Context(), identifier, authenticated)
		if err != nil {
			var ae *models.AnalysisError
			if !errors.As(err, &ae) {
				ae = models.NewAnalysisError(models.ErrCodeInternal, "internal error", err)
			}
			resp.Error = ae.ToDetail()
			c.JSON(mapErrorToStatus(ae), resp)
			return
		}

		resp.Quota = tracker.Status(rec)
		resp.Usage = &rec
		c.JSON(http.StatusOK, resp)
	}
}
