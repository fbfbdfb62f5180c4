package chatbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/korylprince/redbox-chat/events"
)

// ErrEmptyMessage is returned by Submit for a blank message
var ErrEmptyMessage = errors.New("message cannot be empty")

// Bus is the broadcast channel shared by the exchanges of a chat
type Bus interface {
	Publisher
	Subscriber
}

// Chat submits messages for one conversation. Every Submit starts a new
// independent exchange; older exchanges keep streaming until they end or are
// cancelled.
type Chat struct {
	endpoint string
	session  *Session
	bus      Bus

	dialer      *websocket.Dialer
	header      http.Header
	llm         string
	newSink     func(message string) Sink
	analytics   Analytics
	logger      *log.Logger
	idleTimeout time.Duration
	newViewport func() Viewport
	topOffset   float64
	store       ExchangeStore

	mu       sync.Mutex
	selected []string

	wg sync.WaitGroup
}

// ChatOption configures a Chat
type ChatOption func(*Chat)

// WithDialer sets the websocket dialer
func WithDialer(d *websocket.Dialer) ChatOption {
	return func(c *Chat) { c.dialer = d }
}

// WithRequestHeader sets headers sent with each websocket handshake
func WithRequestHeader(h http.Header) ChatOption {
	return func(c *Chat) { c.header = h }
}

// WithLLM sets the model name sent with each request
func WithLLM(llm string) ChatOption {
	return func(c *Chat) { c.llm = llm }
}

// WithSink sets the factory for each exchange's display sink
func WithSink(f func(message string) Sink) ChatOption {
	return func(c *Chat) { c.newSink = f }
}

// WithAnalytics sets the analytics sink
func WithAnalytics(a Analytics) ChatOption {
	return func(c *Chat) { c.analytics = a }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) ChatOption {
	return func(c *Chat) { c.logger = l }
}

// WithExchangeTimeout fails an exchange when the server is silent for d
func WithExchangeTimeout(d time.Duration) ChatOption {
	return func(c *Chat) { c.idleTimeout = d }
}

// WithViewport gives every exchange a ScrollController over the viewport returned by f
func WithViewport(f func() Viewport, topOffset float64) ChatOption {
	return func(c *Chat) {
		c.newViewport = f
		c.topOffset = topOffset
	}
}

// WithStore records finished exchanges in s
func WithStore(s ExchangeStore) ChatOption {
	return func(c *Chat) { c.store = s }
}

// NewChat creates a new Chat that connects to endpoint. bus may be nil.
func NewChat(endpoint string, session *Session, bus Bus, opts ...ChatOption) *Chat {
	if session == nil {
		session = NewSession("")
	}
	c := &Chat{
		endpoint:  endpoint,
		session:   session,
		bus:       bus,
		topOffset: DefaultTopOffset,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the chat's session
func (c *Chat) Session() *Session {
	return c.session
}

// SelectFiles replaces the selected file ids sent with later requests
func (c *Chat) SelectFiles(ids []string) {
	c.mu.Lock()
	c.selected = append([]string{}, ids...)
	c.mu.Unlock()

	if len(ids) == 0 {
		c.session.AddActivity("Cleared selected documents")
		return
	}
	c.session.AddActivity(fmt.Sprintf("Selected documents: %s", strings.Join(ids, ", ")))
}

// SelectedFiles returns the currently selected file ids
func (c *Chat) SelectedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.selected...)
}

// Submit starts a new exchange for message and returns it while it streams.
// The exchange's connection ends when ctx is cancelled.
func (c *Chat) Submit(ctx context.Context, message string) (*Exchange, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	req := NewOutboundRequest(message, c.session.ID(), c.SelectedFiles(), c.llm, c.session.Activities())

	opts := ExchangeOptions{
		Bus:       c.bus,
		Session:   c.session,
		Analytics: c.analytics,
		Logger:    c.logger,
	}
	if c.newSink != nil {
		opts.Sink = c.newSink(message)
	}
	if c.newViewport != nil {
		opts.Scroll = NewScrollController(c.newViewport(), c.topOffset)
	}

	e := NewExchange(req, opts)
	conn := NewConnection(c.dialer, c.endpoint, req, e.Callbacks(),
		WithHeader(c.header), WithIdleTimeout(c.idleTimeout))
	e.Attach(conn)
	if c.bus != nil {
		e.Canceller().Watch(ctx, c.bus)
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		conn.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		<-e.Done()
		c.finish(e)
	}()

	return e, nil
}

func (c *Chat) finish(e *Exchange) {
	s := e.State()
	if len(s.Activities) > 0 {
		c.session.AddActivity(s.Activities...)
	}
	if c.store == nil {
		return
	}
	if err := c.store.Add(NewRecord(e)); err != nil {
		c.logger.Printf("exchange %s: could not store record: %v", e.ID, err)
	}
}

// StopAll broadcasts a stop to every exchange watching the chat's bus
func (c *Chat) StopAll(ctx context.Context) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Publish(ctx, events.TopicStopStreaming, nil)
}

// Wait blocks until every submitted exchange has finished and been recorded
func (c *Chat) Wait() {
	c.wg.Wait()
}
