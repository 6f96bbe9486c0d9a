package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitegrade/api/middleware"
	"github.com/use-agent/sitegrade/models"
	"github.com/use-agent/sitegrade/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AnalysisReader loads stored analyses. storage.SQLiteStore satisfies it.
type AnalysisReader interface {
	GetAnalysis(ctx context.Context, identifier, id string) (*models.AnalysisResult, error)
	ListAnalyses(ctx context.Context, identifier string, limit int) ([]*models.AnalysisResult, error)
}

// GetAnalysis returns a handler for GET /api/v1/analyses/:id. Analyses run
// by another caller are reported as not found.
func GetAnalysis(store AnalysisReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier, _ := middleware.Caller(c)
		result, err := store.GetAnalysis(c.Request.Context(), identifier, c.Param("id"))
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.AnalyzeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "analysis not found",
				},
			})
			return
		}
		if err != nil {
			slog.Error("load analysis failed", "id", c.Param("id"), "error", err)
			respondError(c, err, models.TimingInfo{})
			return
		}

		c.JSON(http.StatusOK, models.AnalyzeResponse{Success: true, Result: result})
	}
}

// ListAnalyses returns a handler for GET /api/v1/analyses. Callers only see
// their own history, newest first.
func ListAnalyses(store AnalysisReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, models.AnalysesResponse{
					Success: false,
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeInvalidInput,
						Message: "limit must be a positive integer",
					},
				})
				return
			}
			limit = min(n, maxListLimit)
		}

		identifier, _ := middleware.Caller(c)
		results, err := store.ListAnalyses(c.Request.Context(), identifier, limit)
		if err != nil {
			slog.Error("list analyses failed", "identifier", identifier, "error", err)
			c.JSON(http.StatusInternalServerError, models.AnalysesResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInternal,
					Message: "could not load analyses",
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.AnalysesResponse{Success: true, Analyses: results})
	}
}
