package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/odp-scheduler-go/pkg/app"
	"github.com/arnavshah/odp-scheduler-go/pkg/config"
	"github.com/arnavshah/odp-scheduler-go/pkg/logger"
)

var r http.Handler

func init() {
	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.Load()
	if err != nil {
		r = failing(err)
		return
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		r = failing(err)
		return
	}

	// Serverless instances do not run the periodic integrity check; it is
	// available on demand at /api/integrity.
	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		r = failing(err)
		return
	}
	if err := a.EnsureOperator(context.Background()); err != nil {
		log.Error("could not create default operator", "err", err)
	}
	r = a.Router()
}

func failing(err error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "service unavailable: "+err.Error(), http.StatusServiceUnavailable)
	})
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
