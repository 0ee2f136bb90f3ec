package websocket

import (
	"net/http"
	"streamspace/types"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBufferSize = 256
)

// WebSocket upgrader with CORS support
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS middleware
		return true
	},
}

// GetUpgrader returns the WebSocket upgrader
func GetUpgrader() websocket.Upgrader {
	return upgrader
}

// Client is a WebSocket connection acting as a hub Channel. Messages are
// queued on a buffered channel and written by a dedicated pump goroutine.
type Client struct {
	hub     Hub
	conn    *websocket.Conn
	send    chan types.ProgressMessage
	jobID   string
	watcher bool

	open      atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Channel = (*Client)(nil)

// NewClient creates a client observing a single job
func NewClient(hub Hub, conn *websocket.Conn, jobID string) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan types.ProgressMessage, sendBufferSize),
		jobID:  jobID,
		closed: make(chan struct{}),
	}
	c.open.Store(true)
	return c
}

// NewWatcher creates a client observing every job
func NewWatcher(hub Hub, conn *websocket.Conn) *Client {
	c := NewClient(hub, conn, "")
	c.watcher = true
	return c
}

// JobID returns the job the client observes, empty for watchers
func (c *Client) JobID() string {
	return c.jobID
}

// Send queues a message without blocking
func (c *Client) Send(msg types.ProgressMessage) error {
	if !c.open.Load() {
		return types.ErrChannelClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return types.ErrSendBufferFull
	}
}

// Close asks the write pump to flush queued messages and send a normal
// closure frame.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.closed)
	})
	return nil
}

// IsOpen reports whether the client still accepts messages
func (c *Client) IsOpen() bool {
	return c.open.Load()
}

// Register attaches the client to the hub and starts its pumps
func (c *Client) Register() {
	if c.watcher {
		c.hub.AttachWatcher(c)
	} else {
		c.hub.Attach(c.jobID, c)
	}
	go c.writePump()
	go c.readPump()
}

func (c *Client) unregister() {
	if c.watcher {
		c.hub.DetachWatcher(c)
	} else {
		c.hub.Release(c.jobID, c)
	}
}

// readPump handles reading from the WebSocket connection. Observers never
// send data; reads only service control frames and detect disconnects.
func (c *Client) readPump() {
	defer func() {
		_ = c.Close()
		c.unregister()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("job_id", c.jobID).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump handles writing to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				log.Warn().Err(err).Str("job_id", c.jobID).Msg("websocket write error")
				_ = c.Close()
				return
			}

		case <-c.closed:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// flush writes whatever was queued before Close
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(message types.ProgressMessage) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(message)
}
