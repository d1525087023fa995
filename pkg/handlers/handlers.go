package handlers

import (
	"embed"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arnavshah/odp-scheduler-go/internal/integrity"
	"github.com/arnavshah/odp-scheduler-go/internal/scheduler"
	"github.com/arnavshah/odp-scheduler-go/pkg/auth"
	"github.com/arnavshah/odp-scheduler-go/pkg/database"
	"github.com/arnavshah/odp-scheduler-go/pkg/metrics"
	"github.com/arnavshah/odp-scheduler-go/pkg/models"
	"github.com/arnavshah/odp-scheduler-go/pkg/notify"
)

//go:embed static/*
var staticEmbed embed.FS

// Handler contains dependencies for the route handlers
type Handler struct {
	DB        *gorm.DB
	Catalog   *database.CachedGateway
	Engine    *scheduler.Engine
	Validator *integrity.Validator
	Auth      *auth.Service
	Hub       *notify.Hub
	Metrics   *metrics.Collector
	Logger    *log.Logger
}

func (h *Handler) logger() *log.Logger {
	if h.Logger == nil {
		h.Logger = log.New(io.Discard)
	}
	return h.Logger
}

func bearer(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}

// AuthMiddleware verifies the operator JWT for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization header required"})
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid token"})
			return
		}

		c.Set("principal", claims.Username)
		c.Next()
	}
}

// WriteMiddleware guards mutating API routes. It accepts an operator JWT, an
// HMAC-signed key or a stored API key, in that order.
func (h *Handler) WriteMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearer(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization required"})
			return
		}

		if claims, err := h.Auth.VerifyToken(key); err == nil {
			c.Set("principal", claims.Username)
			c.Next()
			return
		}
		if clientID, err := h.Auth.VerifyHMACKey(key); err == nil {
			c.Set("principal", clientID)
			c.Next()
			return
		}
		if apiKey, err := auth.VerifyAPIKey(c.Request.Context(), h.DB, key); err == nil {
			c.Set("principal", apiKey.Name)
			c.Set("apiKey", apiKey)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid credentials"})
	}
}

// Login handles operator login
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, err := h.Auth.Login(c.Request.Context(), h.DB, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredential) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid credentials"})
		return
	}
	if err != nil {
		h.logger().Error("login failed", "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// GenerateKey issues a new API key
func (h *Handler) GenerateKey(c *gin.Context) {
	var req models.KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.Signed {
		c.JSON(http.StatusOK, gin.H{"name": req.Name, "key": h.Auth.GenerateHMACKey(req.Name)})
		return
	}
	key, rec, err := h.Auth.IssueAPIKey(c.Request.Context(), h.DB, req.Name)
	if err != nil {
		h.logger().Error("issue api key", "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Could not create key record"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "name": rec.Name, "key": key})
}

// ListKeys returns all API keys
func (h *Handler) ListKeys(c *gin.Context) {
	var keys []database.APIKey
	if err := h.DB.WithContext(c.Request.Context()).Order("id").Find(&keys).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey deletes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	res := h.DB.WithContext(c.Request.Context()).Delete(&database.APIKey{}, "id = ?", c.Param("id"))
	if res.Error != nil {
		h.respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Key not found", Kind: "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

// AdminInterface serves the operator console from embedded files
func (h *Handler) AdminInterface(c *gin.Context) {
	data, err := staticEmbed.ReadFile("static/index.html")
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "static/index.html not found in embedded FS"})
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// GetStaticFS returns the embedded filesystem for static assets
func (h *Handler) GetStaticFS() http.FileSystem {
	sub, err := fs.Sub(staticEmbed, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
