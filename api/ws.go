package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/elysium-mesh/elysium/internal/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

// handleWatch upgrades to a WebSocket stream of inbox arrivals. A
// lagged subscriber is closed with an explicit reason rather than left
// to silently miss items, per the inbox's backpressure contract.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("api: websocket upgrade failed", log.Err(err))
		return
	}
	defer conn.Close()

	sub := s.node.Watch()
	defer sub.Unsubscribe()

	for {
		select {
		case item, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(InboxEntry{
				Seq:       item.Seq,
				MessageID: item.MessageID.String(),
				From:      string(item.From),
				Broadcast: item.Broadcast,
				Plaintext: item.Plaintext,
				ArrivedAt: item.ArrivedAt,
			}); err != nil {
				return
			}
		case <-sub.Lagged:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "lagged"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-r.Context().Done():
			return
		}
	}
}
