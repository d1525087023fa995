package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arnavshah/odp-scheduler-go/internal/integrity"
	domain "github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/internal/scheduler"
	"github.com/arnavshah/odp-scheduler-go/pkg/auth"
	"github.com/arnavshah/odp-scheduler-go/pkg/config"
	"github.com/arnavshah/odp-scheduler-go/pkg/database"
	"github.com/arnavshah/odp-scheduler-go/pkg/metrics"
	"github.com/arnavshah/odp-scheduler-go/pkg/models"
	"github.com/arnavshah/odp-scheduler-go/pkg/notify"
	board "github.com/arnavshah/odp-scheduler-go/pkg/scheduler"
)

type testServer struct {
	router *gin.Engine
	h      *Handler
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		DataPath:        filepath.Join(t.TempDir(), "api.db"),
		JWTSecret:       "jwt-secret",
		APIMasterSecret: "master-secret",
	}
	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	catalog := database.NewCachedGateway(database.NewGateway(db), 64, 0)
	hub := notify.NewHub(nil)
	collector := metrics.NewCollector()
	engine := scheduler.NewEngine(catalog, scheduler.NewStore(), scheduler.Options{Notifier: hub, Recorder: collector})
	authSvc := auth.NewService(cfg).WithCost(bcrypt.MinCost)
	_, err = authSvc.EnsureOperator(context.Background(), db, "admin", "admin123")
	require.NoError(t, err)

	h := &Handler{
		DB:        db,
		Catalog:   catalog,
		Engine:    engine,
		Validator: integrity.NewValidator(catalog, hub, nil).WithUnscheduler(engine),
		Auth:      authSvc,
		Hub:       hub,
		Metrics:   collector,
	}
	s := &testServer{router: NewRouter(h), h: h}

	w := s.do(t, http.MethodPost, "/auth/login", models.LoginRequest{Username: "admin", Password: "admin123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	s.token = login.AccessToken
	return s
}

func (s *testServer) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// do sends an authenticated request.
func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	return s.request(t, method, path, body, s.token)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createMachine(t *testing.T, name string) domain.Machine {
	w := s.do(t, http.MethodPost, "/api/machines", gin.H{
		"machine_name":     name,
		"work_center":      "ZANICA",
		"department":       "PRINTING",
		"machine_type":     "FLEXO",
		"max_web_width":    500,
		"setup_time":       0.5,
		"changeover_color": 0.25,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.Machine](t, w)
}

func (s *testServer) createOrder(t *testing.T, number string, hours float64) domain.ProductionOrder {
	w := s.do(t, http.MethodPost, "/api/orders", gin.H{
		"odp_number": number,
		"bag_width":  400,
		"bag_height": 300,
		"bag_step":   10,
		"department": "PRINTING",
		"quantity":   1000,
		"duration":   hours,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.ProductionOrder](t, w)
}

func TestBanner(t *testing.T) {
	s := newTestServer(t)
	w := s.request(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ODP Scheduler API")

	w = s.request(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.request(t, http.MethodGet, "/admin", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Operator Console")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	w := s.request(t, http.MethodPost, "/auth/login", models.LoginRequest{Username: "admin", Password: "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWritesRequireCredentials(t *testing.T) {
	s := newTestServer(t)

	w := s.request(t, http.MethodPost, "/api/schedule", models.OrderRequest{OrderID: "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.request(t, http.MethodPost, "/api/unschedule", models.OrderRequest{OrderID: "x"}, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.request(t, http.MethodGet, "/api/orders", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScheduleFlow(t *testing.T) {
	s := newTestServer(t)
	m := s.createMachine(t, "Flexo 1")
	o1 := s.createOrder(t, "ODP-1", 2)
	o2 := s.createOrder(t, "ODP-2", 2)

	w := s.do(t, http.MethodPost, "/api/schedule", gin.H{"orderId": o1.ID, "machineId": m.ID, "start": "2024-01-01T08:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scheduled := decode[domain.ProductionOrder](t, w)
	assert.Equal(t, domain.OrderScheduled, scheduled.Status)

	// Overlapping placement is rejected with every reason.
	w = s.do(t, http.MethodPost, "/api/schedule", gin.H{"orderId": o2.ID, "machineId": m.ID, "start": "2024-01-01T09:00:00Z"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	failure := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "validation", failure.Kind)
	require.Len(t, failure.Reasons, 1)
	assert.Contains(t, failure.Reasons[0], "overlaps order ODP-1")

	w = s.request(t, http.MethodGet, "/api/board?day=2024-01-01", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	b := decode[board.Board](t, w)
	require.Len(t, b.Rows, 1)
	require.Len(t, b.Rows[0].Bars, 1)
	assert.Equal(t, o1.ID, b.Rows[0].Bars[0].OrderID)
	require.Len(t, b.Backlog, 1)
	assert.Equal(t, o2.ID, b.Backlog[0].ID)

	// Drop on the cell right after ODP-1.
	w = s.do(t, http.MethodPost, "/api/drop/slot", models.DropSlotRequest{OrderID: o2.ID, MachineID: m.ID, Day: "2024-01-01", Hour: 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[domain.ProductionOrder](t, w)
	assert.Equal(t, domain.OrderScheduled, moved.Status)
	assert.Equal(t, 10, moved.ScheduledStartTime.Hour())

	w = s.do(t, http.MethodPost, "/api/drop/slot", models.DropSlotRequest{OrderID: o2.ID, MachineID: m.ID, Day: "2024-01-01", Hour: 24})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "precondition", decode[models.ErrorResponse](t, w).Kind)

	w = s.do(t, http.MethodPost, "/api/drop/pool", models.OrderRequest{OrderID: o1.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.OrderNotScheduled, decode[domain.ProductionOrder](t, w).Status)

	w = s.do(t, http.MethodPost, "/api/unschedule", models.OrderRequest{OrderID: o1.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/reschedule", gin.H{"orderId": "missing", "machineId": m.ID, "start": "2024-01-01T08:00:00Z"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/orders/"+o2.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "order_scheduled", decode[models.ErrorResponse](t, w).Kind)

	w = s.request(t, http.MethodGet, "/api/board.csv?day=2024-01-01", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Body.String(), "Flexo 1,ODP-2,"+o2.ID)

	assert.Len(t, s.h.Hub.Recent(0), 3)

	w = s.request(t, http.MethodGet, "/metrics", nil, "")
	assert.Contains(t, w.Body.String(), `odp_scheduler_mutations_total{operation="schedule",outcome="validation"} 1`)
}

func TestCompatibilityEndpoint(t *testing.T) {
	s := newTestServer(t)
	m := s.createMachine(t, "Flexo 1")
	w := s.do(t, http.MethodPost, "/api/orders", gin.H{
		"odp_number": "WIDE",
		"bag_width":  700,
		"bag_height": 300,
		"bag_step":   10,
		"department": "PACKAGING",
		"quantity":   10,
		"duration":   1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wide := decode[domain.ProductionOrder](t, w)

	w = s.request(t, http.MethodPost, "/api/compatibility", models.CompatibilityRequest{OrderID: wide.ID, MachineID: m.ID}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[scheduler.Compatibility](t, w)
	assert.False(t, res.Compatible)
	assert.Len(t, res.Reasons, 2)
}

func TestAvailabilityEndpoints(t *testing.T) {
	s := newTestServer(t)
	m := s.createMachine(t, "Flexo 1")

	w := s.do(t, http.MethodPut, "/api/availability/"+m.ID, models.AvailabilityRequest{From: "2024-01-02", To: "2024-01-03", FromHour: 8, ToHour: 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.request(t, http.MethodGet, "/api/availability/"+m.ID+"?date=2024-01-03", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []int{8, 9}, decode[models.AvailabilityResponse](t, w).UnavailableHours)

	w = s.request(t, http.MethodGet, "/api/availability/"+m.ID+"/records?from=2024-01-01&to=2024-01-31", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recs := decode[struct {
		Records []domain.AvailabilityRecord `json:"records"`
	}](t, w).Records
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-01-02", recs[0].Date)
	assert.Equal(t, domain.Hours{8, 9}, recs[1].UnavailableHours)

	w = s.request(t, http.MethodGet, "/api/availability/"+m.ID+"/records?from=2024-02-01", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"records":[]}`, w.Body.String())

	w = s.request(t, http.MethodGet, "/api/availability/"+m.ID+"/records?from=2024-01-05&to=2024-01-01", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.request(t, http.MethodGet, "/api/availability/missing/records?from=2024-01-01", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/availability/"+m.ID, models.AvailabilityRequest{From: "2024-01-02", To: "2024-01-02", FromHour: 10, ToHour: 8})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/availability/"+m.ID, models.AvailabilityRequest{From: "2024-01-05", To: "2024-01-02", FromHour: 1, ToHour: 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Scheduling into a blocked hour fails validation.
	o := s.createOrder(t, "ODP-1", 1)
	w = s.do(t, http.MethodPost, "/api/schedule", gin.H{"orderId": o.ID, "machineId": m.ID, "start": "2024-01-02T09:00:00Z"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIntegrityEndpoints(t *testing.T) {
	s := newTestServer(t)
	m := s.createMachine(t, "Flexo 1")
	o := s.createOrder(t, "ODP-1", 2)

	w := s.do(t, http.MethodPost, "/api/schedule", gin.H{"orderId": o.ID, "machineId": m.ID, "start": "2024-01-01T08:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodDelete, "/api/machines/"+m.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.request(t, http.MethodGet, "/api/integrity", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var check struct {
		Valid  bool             `json:"valid"`
		Report integrity.Report `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.False(t, check.Valid)
	assert.Equal(t, []string{m.ID}, check.Report.MissingMachineKeys)

	w = s.request(t, http.MethodPost, "/api/integrity/cleanup", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/integrity/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{o.ID}, decode[models.CleanupResponse](t, w).Unscheduled)

	w = s.request(t, http.MethodGet, "/api/integrity", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.True(t, check.Valid)

	w = s.request(t, http.MethodGet, "/api/orders?status=NOT_SCHEDULED", nil, "")
	assert.Contains(t, w.Body.String(), o.ID)
}

func TestValidateLegacyEvents(t *testing.T) {
	s := newTestServer(t)
	m := s.createMachine(t, "Flexo 1")
	o := s.createOrder(t, "ODP-1", 1)

	events := []domain.ScheduledEvent{
		{ID: "e1", OrderID: o.ID, MachineID: "Flexo 1"},
		{ID: "e2", OrderID: "gone", MachineID: m.ID},
		{ID: "e3", OrderID: o.ID, MachineID: "Retired press"},
	}
	w := s.request(t, http.MethodPost, "/api/integrity/events", models.EventsRequest{Events: events, Cleanup: true}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Valid   bool                    `json:"valid"`
		Events  []domain.ScheduledEvent `json:"events"`
		Removed integrity.CleanupCounts `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "e1", resp.Events[0].ID)
	assert.Equal(t, integrity.CleanupCounts{OrderOrphans: 1, MachineOrphans: 1, Total: 2}, resp.Removed)
}

func TestAPIKeys(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/admin/keys", models.KeyRequest{Name: "mes", Signed: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	signed := decode[map[string]any](t, w)["key"].(string)
	assert.True(t, strings.HasPrefix(signed, "mes."))

	w = s.request(t, http.MethodGet, "/api/usage", nil, signed)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "mes", decode[map[string]any](t, w)["principal"])

	w = s.do(t, http.MethodPost, "/admin/keys", models.KeyRequest{Name: "bridge"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored := decode[map[string]any](t, w)["key"].(string)

	w = s.request(t, http.MethodGet, "/api/usage", nil, stored)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "bridge", decode[map[string]any](t, w)["key_name"])

	w = s.do(t, http.MethodGet, "/admin/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	keys := decode[struct {
		Keys []database.APIKey `json:"keys"`
	}](t, w).Keys
	require.Len(t, keys, 1)

	w = s.request(t, http.MethodGet, "/admin/keys", nil, signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodDelete, "/admin/keys/"+jsonNumber(keys[0].ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.request(t, http.MethodGet, "/api/usage", nil, stored)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func jsonNumber(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
