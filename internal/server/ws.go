package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds to loopback; browser clients attach from file:// or
	// dev-server origins.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

const feedWriteWait = 10 * time.Second

// handleFeed streams feed envelopes to one websocket client until either
// side goes away. Clients only read; anything they send is discarded.
func (r *Router) handleFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sub := r.trk.Feed().Subscribe(64)
	defer sub.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	r.logger.Debug("feed client connected", "remote", conn.RemoteAddr().String())
	for {
		select {
		case <-gone:
			return
		case env, ok := <-sub.Events():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}
}
