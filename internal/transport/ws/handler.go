package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"collabcore/internal/session"
)

// Upgrader mirrors collab-service/backend/internal/ws/wsmanager.go's
// upgrader: buffer sizes tuned for chat-sized JSON frames, origin
// checking left to the caller's CORS/auth layer rather than duplicated
// here.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler upgrades a gin request to a WebSocket connection and wires it
// into the session fabric, grounded on wsmanager.go's
// Manager.WebSocketConnect: auth.Middleware has already populated
// "userId" on the context by the time Handler runs.
func Handler(fabric *session.Fabric) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := c.Get("userId")
		uid, _ := userID.(string)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authenticated user"})
			return
		}

		raw, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		conn := NewConn(raw)
		sess := fabric.RegisterSession(conn, uid)

		pingStop := make(chan struct{})
		go pingLoop(conn, pingStop)

		conn.ReadLoop(
			pongWait,
			func(frame []byte) { fabric.HandleMessage(sess.ID, frame) },
			sess.MarkAlive,
			func() {
				close(pingStop)
				fabric.UnregisterSession(sess.ID, "Connection closed")
			},
		)
	}
}

// pingLoop sends transport-level pings on pingPeriod until stop fires,
// matching wsmanager.go's writeLoop ping ticker. The session-level
// "heartbeat" frame from Fabric.StartHeartbeat is the primary liveness
// mechanism; this is a belt-and-suspenders transport keepalive so
// intermediate proxies don't idle the socket out.
func pingLoop(conn *Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.writeMu.Lock()
			err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			conn.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
