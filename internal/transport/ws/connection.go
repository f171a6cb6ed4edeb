// Package ws adapts gorilla/websocket to the session package's
// transport-agnostic Connection interface, grounded in
// collab-service/backend/internal/ws/{conn.go,wsmanager.go}.
package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps one upgraded websocket connection. gorilla/websocket
// forbids concurrent writers on the same connection, so every outbound
// write (frames and control messages alike) goes through writeMu.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) Close(code int, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// ReadLoop blocks reading frames until the connection errors or closes,
// invoking onMessage for each and onClose once at the end. It owns the
// read deadline for the lifetime of the connection: pongWait is the
// initial deadline, and every pong frame (a transport-level liveness
// signal treated the same as an inbound heartbeat frame) both refreshes
// the deadline and invokes onPong. Callers must not install their own
// pong handler or read deadline. gorilla/websocket keeps only the
// last-registered pong handler, so a second registration would silently
// drop this one's deadline refresh.
func (c *Conn) ReadLoop(pongWait time.Duration, onMessage func([]byte), onPong func(), onClose func()) {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		if onPong != nil {
			onPong()
		}
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	defer func() {
		c.closed.Store(true)
		onClose()
	}()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(msg)
	}
}
