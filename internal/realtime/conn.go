package realtime

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxFrameSize = 64 * 1024

// ConnOptions holds websocket keepalive timing.
type ConnOptions struct {
	WriteWait time.Duration
	PongWait  time.Duration
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	return o
}

// Serve runs a session over an upgraded websocket connection and returns
// when the connection ends. Each inbound frame is dispatched in its own
// goroutine so a slow store call never stalls the read loop.
func (h *Hub) Serve(conn *websocket.Conn, userID primitive.ObjectID, opts ConnOptions) {
	opts = opts.withDefaults()
	s := h.Connect(userID)

	go writePump(conn, s, opts)

	defer func() {
		h.Disconnect(s)
		conn.Close()
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARN: Session %s read error: %v", s.ID, err)
			}
			return
		}
		go h.Dispatch(s, frame)
	}
}

// writePump is the only writer on conn.
func writePump(conn *websocket.Conn, s *Session, opts ConnOptions) {
	ticker := time.NewTicker(opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("WARN: Session %s write failed: %v", s.ID, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
