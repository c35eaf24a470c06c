package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// ErrConnClosed is returned by Send after the connection has died.
var ErrConnClosed = errors.New("transport: connection closed")

// Dialer opens realtime connections. The hub holds one and redials through
// it on every reconnect.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer dials the chat server's websocket endpoint with a bearer token.
type WSDialer struct {
	URL   string
	Token string
	Log   *zap.Logger
}

// Dial opens the websocket and starts its read and write pumps.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, header)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		ws:     ws,
		send:   make(chan Frame, sendBuffer),
		frames: make(chan Frame, sendBuffer),
		done:   make(chan struct{}),
		log:    d.Log,
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

type wsConn struct {
	ws     *websocket.Conn
	send   chan Frame
	frames chan Frame
	done   chan struct{}
	log    *zap.Logger

	closeOnce sync.Once
}

func (c *wsConn) Send(f Frame) error {
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return ErrConnClosed
	}
}

func (c *wsConn) Frames() <-chan Frame { return c.frames }

func (c *wsConn) Done() <-chan struct{} { return c.done }

func (c *wsConn) Close() error {
	c.markDone()
	return c.ws.Close()
}

func (c *wsConn) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsConn) readPump() {
	defer func() {
		c.markDone()
		c.ws.Close()
		close(c.frames)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if f.Event == "" {
			continue
		}

		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.markDone()
		c.ws.Close()
	}()

	for {
		select {
		case f := <-c.send:
			data, err := json.Marshal(f)
			if err != nil {
				c.log.Warn("dropping unmarshalable frame", zap.String("event", f.Event), zap.Error(err))
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
