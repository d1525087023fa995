package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
)

func TestRecentKeepsLatest(t *testing.T) {
	h := NewHub(nil)
	h.limit = 3
	for _, id := range []string{"a", "b", "c", "d"} {
		h.Notify(models.Notification{ID: id, Type: models.NotificationScheduled})
	}

	recent := h.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "d", recent[2].ID)

	recent = h.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "d", recent[0].ID)
}

func TestHubBroadcastsToWebsocketClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(nil)
	r := gin.New()
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Notify(models.Notification{ID: "n1", Type: models.NotificationUnscheduled, OrderID: "o1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got models.Notification
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, models.NotificationUnscheduled, got.Type)
	assert.Equal(t, "o1", got.OrderID)

	conn.Close()
	require.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
