package handlers

import (
	"errors"
	"net/http"

	"github.com/arnavshah/odp-scheduler-go/internal/scheduler"
	"github.com/arnavshah/odp-scheduler-go/pkg/database"
	"github.com/arnavshah/odp-scheduler-go/pkg/models"
	"github.com/gin-gonic/gin"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "precondition", "in_progress", "order_scheduled":
		return http.StatusConflict
	case "invalid":
		return http.StatusBadRequest
	case "persistence":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	kind := scheduler.ErrorKind(err)
	if kind == "unexpected" && errors.Is(err, database.ErrNotFound) {
		kind = "not_found"
	}
	resp := models.ErrorResponse{Error: err.Error(), Kind: kind}
	var vf *scheduler.ValidationFailure
	if errors.As(err, &vf) {
		resp.Reasons = vf.Reasons
	}
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger().Error("request failed", "path", c.FullPath(), "kind", kind, "err", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Kind: "invalid"})
}
