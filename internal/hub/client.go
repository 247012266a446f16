package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
	sendBufferSize = 64
)

// Client is one websocket connection. roomID and username are owned by the
// hub loop and must only be touched there; the pumps never read them.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	roomID   string
	username string
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// readPump forwards raw inbound frames to the hub loop. All parsing and
// validation happens on the loop so this goroutine holds no protocol state.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.hub.inbound <- inboundMessage{client: c, raw: raw}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains the send channel. The channel is closed by the hub loop
// when the client unregisters, which terminates the pump with a close frame.
func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
}
