package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/m-mizutani/gt"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/pkg/dto"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	gt.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	gt.NoError(t, err)
	var evt dto.WSEvent
	gt.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHubBroadcast(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	pid := uuid.New()
	hub.BroadcastEvent(&models.IdentityEvent{
		ID:          uuid.New(),
		Type:        models.EventRecognized,
		PersonID:    &pid,
		DisplayName: "Alice",
		Confidence:  0.8,
		Timestamp:   time.Now(),
	})

	evt := readEvent(t, conn)
	gt.Equal(t, evt.Type, "recognized")
	gt.Equal(t, *evt.Data.PersonID, pid)
	gt.Equal(t, evt.Data.DisplayName, "Alice")
}

func TestHubTypeFilter(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?type=enrolled")
	waitClients(t, hub, 1)

	hub.BroadcastEvent(&models.IdentityEvent{ID: uuid.New(), Type: models.EventRejected, Timestamp: time.Now()})
	hub.BroadcastEvent(&models.IdentityEvent{ID: uuid.New(), Type: models.EventEnrolled, DisplayName: "Bob", Timestamp: time.Now()})

	evt := readEvent(t, conn)
	gt.Equal(t, evt.Type, "enrolled")
	gt.Equal(t, evt.Data.DisplayName, "Bob")
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}
