package api

import (
	"alcyxob/fitmate/internal/realtime"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	hub      *realtime.Hub
	opts     realtime.ConnOptions
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, opts realtime.ConnOptions) *WSHandler {
	return &WSHandler{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Mobile clients send no Origin; the token is the access check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades the request and serves the session until it closes.
func (h *WSHandler) Connect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("WARN: Websocket upgrade failed for user %s: %v", userID.Hex(), err)
		return
	}
	h.hub.Serve(conn, userID, h.opts)
}
