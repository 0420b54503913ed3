package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/agent-desktop/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Client represents one connected viewer
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	logger   *logger.Logger
	onClosed func(*Client)
}

func newClient(conn *websocket.Conn, log *logger.Logger, onClosed func(*Client)) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		logger:   log,
		onClosed: onClosed,
	}
}

// enqueue hands a marshaled message to the write pump. A viewer that cannot
// keep up has its oldest pending message dropped rather than blocking the
// orchestrator.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- data:
		default:
		}
		c.logger.Warn("Viewer send buffer full, dropped oldest message")
	}
}

// writePump writes queued messages and periodic keep-alive pings to the
// connection. A missed pong is logged but does not close the connection:
// the heartbeat is deliberately soft.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Viewer write failed", logger.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Viewer ping failed", logger.Error(err))
				c.close()
				return
			}
		}
	}
}

// readPump consumes inbound frames so control messages are processed and
// connection teardown is detected.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetPongHandler(func(string) error {
		c.logger.Debug("Keep-alive pong received")
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// close tears the client down exactly once
func (c *Client) close() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)
	c.conn.Close()
	if c.onClosed != nil {
		c.onClosed(c)
	}
}
