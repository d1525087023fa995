package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/odp-scheduler-go/pkg/database"
	"github.com/arnavshah/odp-scheduler-go/pkg/notify"
)

// GetMyUsage returns who the caller is and how the service is doing
func (h *Handler) GetMyUsage(c *gin.Context) {
	resp := gin.H{"principal": c.GetString("principal")}
	if raw, ok := c.Get("apiKey"); ok {
		apiKey := raw.(*database.APIKey)
		resp["key_name"] = apiKey.Name
		resp["key_preview"] = apiKey.KeyPreview
		resp["last_used"] = apiKey.LastUsed
	}

	hits, misses := h.Catalog.Stats()
	resp["cache"] = gin.H{"hits": hits, "misses": misses}
	if h.Hub != nil {
		resp["websocket_clients"] = h.Hub.Clients()
	}
	c.JSON(http.StatusOK, resp)
}

// RecentNotifications returns the latest notifications for polling clients
func (h *Handler) RecentNotifications(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(notify.DefaultHistory)))
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": h.Hub.Recent(limit)})
}
