package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clicklone/clicklone/internal/app/domain/analytics"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = 54 * time.Second
	liveBuffer     = 64
	liveReadLimit  = 512
)

type liveMessage struct {
	Type string           `json:"type"`
	Data *analytics.Event `json:"data,omitempty"`
}

// adminAnalyticsLive streams recorded events to the dashboard.
func (h *handler) adminAnalyticsLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Debug("live analytics upgrade failed")
		return
	}
	events, cancel := h.app.Analytics.Hub().Subscribe(liveBuffer)
	log := h.log.WithContext(r.Context())
	log.Info("live analytics client connected")

	go h.liveReadPump(conn, cancel)
	h.liveWritePump(conn, events, cancel)
	log.Info("live analytics client disconnected")
}

// liveReadPump only services control frames; the feed is one way.
func (h *handler) liveReadPump(conn *websocket.Conn, cancel func()) {
	defer func() {
		cancel()
		conn.Close()
	}()
	conn.SetReadLimit(liveReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("live analytics read error")
			}
			return
		}
	}
}

func (h *handler) liveWritePump(conn *websocket.Conn, events <-chan analytics.Event, cancel func()) {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteJSON(liveMessage{Type: "hello"}); err != nil {
		return
	}

	for {
		select {
		case evt, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			if err := conn.WriteJSON(liveMessage{Type: "event", Data: &evt}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
