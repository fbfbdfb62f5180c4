package chatbot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Callbacks receive the lifecycle of a Connection. OnError is called at most
// once and is always followed by OnClose.
type Callbacks struct {
	OnOpen  func()
	OnFrame func(raw []byte)
	OnError func(err error)
	OnClose func()
}

// Connection is one websocket connection for one exchange. It sends exactly
// one OutboundRequest and then only reads.
type Connection struct {
	dialer      *websocket.Dialer
	endpoint    string
	header      http.Header
	request     OutboundRequest
	cb          Callbacks
	idleTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// ConnectionOption configures a Connection
type ConnectionOption func(*Connection)

// WithHeader sets headers sent with the websocket handshake
func WithHeader(h http.Header) ConnectionOption {
	return func(c *Connection) {
		c.header = h
	}
}

// WithIdleTimeout fails the exchange when no frame arrives within d. Zero disables it.
func WithIdleTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) {
		c.idleTimeout = d
	}
}

// NewConnection creates a new Connection. A nil dialer uses websocket.DefaultDialer.
func NewConnection(dialer *websocket.Dialer, endpoint string, req OutboundRequest, cb Callbacks, opts ...ConnectionOption) *Connection {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c := &Connection{
		dialer:   dialer,
		endpoint: endpoint,
		request:  req,
		cb:       cb,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run dials, sends the request and feeds inbound frames to the callbacks until
// the connection closes. It blocks and always ends with OnClose.
func (c *Connection) Run(ctx context.Context) {
	defer c.onClose()

	if c.isClosed() {
		return
	}

	ws, _, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if err != nil {
		if ctx.Err() == nil {
			c.onError(fmt.Errorf("failed to connect: %w", err))
		}
		return
	}
	defer ws.Close()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = ws
	c.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	body, err := json.Marshal(c.request)
	if err != nil {
		c.onError(fmt.Errorf("failed to marshal request: %w", err))
		return
	}
	if err := ws.WriteMessage(websocket.TextMessage, body); err != nil {
		if !c.isClosed() {
			c.onError(fmt.Errorf("failed to send message: %w", err))
		}
		return
	}

	if c.cb.OnOpen != nil {
		c.cb.OnOpen()
	}

	for {
		if c.idleTimeout > 0 {
			ws.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.onError(fmt.Errorf("failed to read response: %w", err))
			return
		}
		if c.cb.OnFrame != nil {
			c.cb.OnFrame(raw)
		}
	}
}

// Close closes the connection. It is idempotent and safe to call before Run,
// during Run and after the server closed the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) onError(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

func (c *Connection) onClose() {
	if c.cb.OnClose != nil {
		c.cb.OnClose()
	}
}
