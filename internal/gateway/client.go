// ABOUTME: Per-socket read and write pumps for the websocket hub
// ABOUTME: Standard gorilla keepalive scheme with ping/pong deadlines
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// Exactly one of userID/channelID is set.
	userID    int64
	channelID int64
	name      string

	// mu serializes trySend against close so a delivery racing a teardown
	// cannot write to the closed send channel.
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, userID, channelID int64, name string) *client {
	return &client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		userID:    userID,
		channelID: channelID,
		name:      name,
	}
}

func (c *client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.hub.log.Warn().Err(err).Int64("user", c.userID).Msg("bad frame")
			continue
		}
		c.hub.dispatch(context.Background(), c, f)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues a message without blocking. A socket that cannot keep up
// gets dropped rather than stalling deliveries to everyone else.
func (c *client) trySend(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("socket closed")
	}
	select {
	case c.send <- msg:
		return nil
	default:
		go c.close()
		return errors.New("send buffer full")
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.hub.detach(c)
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}
