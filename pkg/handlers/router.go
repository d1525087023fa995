package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/odp-scheduler-go/pkg/database"
)

// Version is reported by the banner route.
const Version = "1.0.0"

// Fresh reloads the scheduling projection before the handler runs, so
// catalog changes made by other processes are seen.
func (h *Handler) Fresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.refresh(c) {
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request.
func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger().Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// NewRouter wires every route onto a new gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.RequestLogger())
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "ODP Scheduler API",
			"version": Version,
		})
	})
	r.GET("/healthz", func(c *gin.Context) {
		if err := database.Ping(h.DB); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Operator console served from the embedded FS
	r.StaticFS("/static", h.GetStaticFS())
	r.GET("/admin", h.AdminInterface)
	r.POST("/auth/login", h.Login)

	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.DELETE("/keys/:id", h.RevokeKey)
	}

	if h.Hub != nil {
		r.GET("/ws", h.Hub.Handle)
	}

	api := r.Group("/api")
	{
		api.GET("/machines", h.ListMachines)
		api.GET("/phases", h.ListPhases)
		api.GET("/orders", h.ListOrders)
		api.GET("/board", h.Fresh(), h.GetBoard)
		api.GET("/board.csv", h.Fresh(), h.GetBoardCSV)
		api.POST("/compatibility", h.Fresh(), h.Compatibility)
		api.GET("/availability/:machineId", h.Fresh(), h.GetAvailability)
		api.GET("/availability/:machineId/records", h.Fresh(), h.ListAvailability)
		api.GET("/integrity", h.Integrity)
		api.POST("/integrity/events", h.ValidateEvents)
		if h.Hub != nil {
			api.GET("/notifications", h.RecentNotifications)
		}
	}

	write := api.Group("")
	write.Use(h.WriteMiddleware())
	{
		write.GET("/usage", h.GetMyUsage)

		write.POST("/machines", h.CreateMachine)
		write.PATCH("/machines/:id/status", h.UpdateMachineStatus)
		write.DELETE("/machines/:id", h.DeleteMachine)
		write.POST("/phases", h.CreatePhase)
		write.POST("/orders", h.CreateOrder)
		write.DELETE("/orders/:id", h.DeleteOrder)

		write.POST("/schedule", h.Fresh(), h.Schedule)
		write.POST("/unschedule", h.Fresh(), h.Unschedule)
		write.POST("/reschedule", h.Fresh(), h.Reschedule)
		write.POST("/drop/slot", h.Fresh(), h.DropOnSlot)
		write.POST("/drop/pool", h.Fresh(), h.DropOnPool)
		write.PUT("/availability/:machineId", h.Fresh(), h.SetAvailability)

		write.POST("/integrity/cleanup", h.IntegrityCleanup)
	}

	return r
}
