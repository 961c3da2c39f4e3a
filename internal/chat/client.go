package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"empirechat/internal/economy"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendQueueSize  = 64
)

// inbound is the wire shape of one chat line from a client.
type inbound struct {
	Msg string `json:"msg"`
}

// Client is one connection. Reads happen on the connection's goroutine,
// writes only on writePump; the hub talks to the client through its send
// queue.
type Client struct {
	id   string
	nick string
	hub  *Hub
	conn *websocket.Conn
	send chan economy.Message
}

func newClient(hub *Hub, conn *websocket.Conn, nick string) *Client {
	return &Client{
		id:   uuid.NewString(),
		nick: nick,
		hub:  hub,
		conn: conn,
		send: make(chan economy.Message, sendQueueSize),
	}
}

// trySend queues msg without blocking. A client that cannot drain its queue
// loses messages rather than stalling the room.
func (c *Client) trySend(msg economy.Message) {
	select {
	case c.send <- msg:
	default:
		c.hub.metrics.MessageDropped()
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Error("read failed", "nickname", c.nick, "err", err)
			}
			return
		}
		if c.hub.handler == nil {
			continue
		}
		for _, out := range c.hub.handler.Handle(ctx, c.nick, in.Msg) {
			switch out.Scope {
			case economy.ScopeRoom:
				c.hub.Broadcast(out.Message)
			case economy.ScopeSender:
				c.trySend(out.Message)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
