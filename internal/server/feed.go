package server

import (
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	feedSendBuffer = 64
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
	feedReadLimit  = 512
)

// feedConn manages one feed client with a single write goroutine.
type feedConn struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	once   sync.Once
	logger *slog.Logger
}

func newFeedConn(conn *ws.Conn, logger *slog.Logger) *feedConn {
	return &feedConn{
		conn:   conn,
		sendCh: make(chan []byte, feedSendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// writeLoop drains sendCh and pings the client. It is the only writer of
// data frames.
func (c *feedConn) writeLoop() {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait)); err != nil {
				c.logger.Debug("Feed SetWriteDeadline error", "error", err)
				c.close()
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Debug("Feed write error", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop discards client messages and notices when the client goes away.
func (c *feedConn) readLoop() {
	c.conn.SetReadLimit(feedReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.close()
			return
		}
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *feedConn) send(data []byte) {
	select {
	case <-c.done:
	case c.sendCh <- data:
	default:
		c.logger.Debug("Feed send channel full, dropping message")
	}
}

// close sends a close frame and releases the connection. Safe to call more
// than once.
func (c *feedConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.conn.Close()
	})
}

// feed tracks connected clients for broadcast messages.
type feed struct {
	mu      sync.Mutex
	clients map[*feedConn]struct{}
}

func newFeed() *feed {
	return &feed{clients: make(map[*feedConn]struct{})}
}

func (f *feed) add(c *feedConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c] = struct{}{}
}

func (f *feed) remove(c *feedConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, c)
}

func (f *feed) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *feed) broadcast(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		c.send(data)
	}
}

func (f *feed) closeAll() {
	f.mu.Lock()
	clients := make([]*feedConn, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
