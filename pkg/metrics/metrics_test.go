package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnavshah/odp-scheduler-go/internal/integrity"
	"github.com/arnavshah/odp-scheduler-go/internal/models"
)

func TestObserveMutation(t *testing.T) {
	c := NewCollector()
	c.ObserveMutation("schedule", "ok")
	c.ObserveMutation("schedule", "ok")
	c.ObserveMutation("schedule", "validation")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.mutations.WithLabelValues("schedule", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.mutations.WithLabelValues("schedule", "validation")))
}

func TestObserveIntegrity(t *testing.T) {
	c := NewCollector()
	r := integrity.Report{
		OrphanMachineEvents: []models.ScheduledEvent{{ID: "event-o1", OrderID: "o1", MachineID: "gone"}},
		MissingMachineKeys:  []string{"gone"},
	}
	c.ObserveIntegrity(r, time.Unix(1700000000, 0))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.orphanEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.missingMachines))
	assert.Equal(t, 1.7e9, testutil.ToFloat64(c.lastCheck))
}

func TestHandlerExposesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewCollector()
	r := gin.New()
	r.Use(c.Middleware())
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(c.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `odp_http_request_duration_seconds_count{method="GET",route="/ping",status="200"} 1`)
}
