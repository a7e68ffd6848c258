package server

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is a websocket subscriber. The stream is one-way: anything the
// peer sends is discarded.
type Client struct {
	*queue
	conn *websocket.Conn
	log  logrus.FieldLogger
}

func NewClient(conn *websocket.Conn, logger logrus.FieldLogger) *Client {
	return &Client{
		queue: newQueue(sendBufferSize),
		conn:  conn,
		log:   logger,
	}
}

// Write drains the send queue to the peer until the queue is closed, then
// sends a close frame.
func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("ws write exiting")
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if !c.sendMessage(websocket.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// Read blocks until the peer goes away, then calls onClose.
func (c *Client) Read(onClose func()) {
	defer func() {
		c.conn.Close()
		onClose()
		c.log.Debug("ws read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("ws read")
			}
			return
		}
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.WithError(err).Warn("ws write message")
		}
		return false
	}

	return true
}
