package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/odp-scheduler-go/internal/integrity"
	"github.com/arnavshah/odp-scheduler-go/pkg/models"
)

func (h *Handler) observe(r integrity.Report) {
	if h.Metrics != nil {
		h.Metrics.ObserveIntegrity(r, time.Now())
	}
}

// Integrity runs a read-only integrity check
func (h *Handler) Integrity(c *gin.Context) {
	report, err := h.Validator.Check(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.observe(report)
	c.JSON(http.StatusOK, gin.H{
		"valid":   report.Clean(),
		"report":  report,
		"summary": report.Format(),
	})
}

// IntegrityCleanup checks and unschedules every flagged order
func (h *Handler) IntegrityCleanup(c *gin.Context) {
	ctx := c.Request.Context()
	report, err := h.Validator.Check(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.observe(report)
	if report.Clean() {
		c.JSON(http.StatusOK, models.CleanupResponse{
			Unscheduled: []string{},
			Skipped:     []string{},
			Moved:       []string{},
			Message:     report.Format(),
		})
		return
	}

	res, err := h.Validator.Remediate(ctx, report)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(res.Unscheduled) > 0 && !h.refresh(c) {
		return
	}
	h.logger().Info("integrity cleanup", "principal", c.GetString("principal"),
		"unscheduled", len(res.Unscheduled), "skipped", len(res.Skipped), "moved", len(res.Moved))
	c.JSON(http.StatusOK, models.CleanupResponse{
		Unscheduled: res.Unscheduled,
		Skipped:     res.Skipped,
		Moved:       res.Moved,
		Message:     report.Format(),
	})
}

// ValidateEvents checks an event list kept outside the order catalog and,
// when asked, returns it without the orphaned entries.
func (h *Handler) ValidateEvents(c *gin.Context) {
	var req models.EventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	report, err := h.Validator.CheckEvents(c.Request.Context(), req.Events)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := gin.H{
		"valid":   report.Clean(),
		"report":  report,
		"summary": report.Format(),
	}
	if req.Cleanup {
		retained, counts := integrity.Cleanup(req.Events, report)
		resp["events"] = retained
		resp["removed"] = counts
	}
	c.JSON(http.StatusOK, resp)
}
