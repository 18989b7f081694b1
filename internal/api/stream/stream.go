// Package stream pushes lifecycle events and per-instance log tails to
// operator clients over a websocket, grounded on the teacher's
// internal/api/websocket_handlers.go and dashboard_websocket.go.
package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/numdrassl/servermanager/internal/orchestrator/events"
	"github.com/numdrassl/servermanager/internal/orchestrator/facade"
	"github.com/numdrassl/servermanager/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades operator connections and streams fleet activity.
type Handler struct {
	manager *facade.Manager
}

// NewHandler builds a Handler backed by manager.
func NewHandler(manager *facade.Manager) *Handler {
	return &Handler{manager: manager}
}

type streamMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// HandleEvents upgrades the connection and streams every Bus event to the
// client as JSON, one message per frame, until the client disconnects.
func (h *Handler) HandleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("failed to upgrade event stream connection", err, nil)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go drainIncoming(conn, closed)

	unsubscribe := h.manager.Bus.Subscribe(func(evt events.Event) {
		msg := streamMessage{Type: string(evt.Type), Timestamp: evt.Timestamp, Data: evt.Payload}
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, data)
	})
	defer unsubscribe()

	<-closed
}

// HandleLogs upgrades the connection and streams recently captured log
// lines for a single instance, polling every 500ms for newly appended
// lines.
func (h *Handler) HandleLogs(c *gin.Context) {
	serverID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("failed to upgrade log stream connection", err, map[string]interface{}{"serverId": serverID})
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go drainIncoming(conn, closed)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var sent int
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			inst := h.manager.Get(serverID)
			if inst == nil || inst.Process == nil {
				continue
			}
			lines := inst.Process.RecentLogs(1000)
			if len(lines) <= sent {
				continue
			}
			for _, line := range lines[sent:] {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
					return
				}
			}
			sent = len(lines)
		}
	}
}

// drainIncoming reads (and discards) client frames until the connection
// closes, signalling closed so the writer side can stop.
func drainIncoming(conn *websocket.Conn, closed chan struct{}) {
	defer close(closed)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
