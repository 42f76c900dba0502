// Stats HTTP handler.
//
// This file exposes the instance-wide usage endpoint:
//   - GET /stats  (conversation, message, and verification counts)
//
// The counters are row counts, not time series; Prometheus metrics cover the
// operational view. This endpoint exists for dashboards that want a cheap
// snapshot without scraping.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lexstream/go-counsel-backend/internal/repo"
)

// GetStats godoc
// @ID          getStats
// @Summary     Usage statistics
// @Description Returns instance-wide conversation, message, and citation-verification counts.
// @Tags        Stats
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
//
// @Success     200  {object} repo.UsageStats
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid bearer token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := repo.CollectUsageStats(c.Request.Context(), h.d.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}
