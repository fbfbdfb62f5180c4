package chatbot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newTestServer runs script for every websocket connection, after reading the request
func newTestServer(t *testing.T, script func(conn *websocket.Conn, req OutboundRequest)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req OutboundRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		script(conn, req)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func closeNormally(conn *websocket.Conn) {
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	// wait for the client's close reply
	conn.SetReadDeadline(time.Now().Add(time.Second))
	conn.ReadMessage()
}

type callLog struct {
	mu     sync.Mutex
	calls  []string
	frames []string
	errs   []error
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) callbacks() Callbacks {
	return Callbacks{
		OnOpen: func() { l.add("open") },
		OnFrame: func(raw []byte) {
			l.mu.Lock()
			l.frames = append(l.frames, string(raw))
			l.mu.Unlock()
			l.add("frame")
		},
		OnError: func(err error) {
			l.mu.Lock()
			l.errs = append(l.errs, err)
			l.mu.Unlock()
			l.add("error")
		},
		OnClose: func() { l.add("close") },
	}
}

func runWithin(t *testing.T, c *Connection, ctx context.Context) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestConnectionSendsOneRequestAndReadsInOrder(t *testing.T) {
	got := make(chan OutboundRequest, 1)
	extra := make(chan bool, 1)
	endpoint := newTestServer(t, func(conn *websocket.Conn, req OutboundRequest) {
		got <- req
		for _, text := range []string{"a", "b", "c"} {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","data":"`+text+`"}`))
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

		// anything other than the close reply is a second outbound frame
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := conn.ReadMessage()
		extra <- !websocket.IsCloseError(err, websocket.CloseNormalClosure)
	})

	id := "s1"
	log := &callLog{}
	c := NewConnection(nil, endpoint, NewOutboundRequest("Hello", &id, []string{"f1"}, "gpt-4o", nil), log.callbacks())
	runWithin(t, c, context.Background())

	req := <-got
	assert.Equal(t, "Hello", req.Message)
	require.NotNil(t, req.SessionID)
	assert.Equal(t, "s1", *req.SessionID)
	assert.Equal(t, []string{"f1"}, req.SelectedFiles)
	assert.False(t, <-extra, "client sent a second frame")

	assert.Equal(t, []string{"open", "frame", "frame", "frame", "close"}, log.calls)
	assert.Equal(t, []string{
		`{"type":"text","data":"a"}`,
		`{"type":"text","data":"b"}`,
		`{"type":"text","data":"c"}`,
	}, log.frames)
	assert.Empty(t, log.errs)
}

func TestConnectionDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	log := &callLog{}
	c := NewConnection(nil, endpoint, OutboundRequest{Message: "Hello"}, log.callbacks())
	runWithin(t, c, context.Background())

	assert.Equal(t, []string{"error", "close"}, log.calls)
	require.Len(t, log.errs, 1)
	assert.Contains(t, log.errs[0].Error(), "failed to connect")
}

func TestConnectionAbnormalClosure(t *testing.T) {
	endpoint := newTestServer(t, func(conn *websocket.Conn, req OutboundRequest) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","data":"Partial"}`))
		// drop the TCP connection without a close frame
		conn.UnderlyingConn().Close()
	})

	log := &callLog{}
	c := NewConnection(nil, endpoint, OutboundRequest{Message: "Hello"}, log.callbacks())
	runWithin(t, c, context.Background())

	assert.Equal(t, []string{"open", "frame", "error", "close"}, log.calls)
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	opened := make(chan struct{})
	endpoint := newTestServer(t, func(conn *websocket.Conn, req OutboundRequest) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","data":"Hi"}`))
		// stream forever until the client closes
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conn.ReadMessage()
	})

	log := &callLog{}
	cb := log.callbacks()
	onFrame := cb.OnFrame
	cb.OnFrame = func(raw []byte) {
		onFrame(raw)
		close(opened)
	}
	c := NewConnection(nil, endpoint, OutboundRequest{Message: "Hello"}, cb)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	<-opened
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.NoError(t, c.Close())
	assert.Equal(t, []string{"open", "frame", "close"}, log.calls)
}

func TestConnectionCloseBeforeRun(t *testing.T) {
	log := &callLog{}
	c := NewConnection(nil, "ws://127.0.0.1:1/never", OutboundRequest{}, log.callbacks())
	require.NoError(t, c.Close())

	runWithin(t, c, context.Background())
	assert.Equal(t, []string{"close"}, log.calls)
}

func TestConnectionContextCancel(t *testing.T) {
	endpoint := newTestServer(t, func(conn *websocket.Conn, req OutboundRequest) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conn.ReadMessage()
	})

	log := &callLog{}
	ctx, cancel := context.WithCancel(context.Background())
	cb := log.callbacks()
	onOpen := cb.OnOpen
	cb.OnOpen = func() {
		onOpen()
		cancel()
	}
	c := NewConnection(nil, endpoint, OutboundRequest{Message: "Hello"}, cb)
	runWithin(t, c, ctx)

	assert.Equal(t, []string{"open", "close"}, log.calls)
}

func TestConnectionIdleTimeout(t *testing.T) {
	endpoint := newTestServer(t, func(conn *websocket.Conn, req OutboundRequest) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conn.ReadMessage()
	})

	log := &callLog{}
	c := NewConnection(nil, endpoint, OutboundRequest{Message: "Hello"}, log.callbacks(), WithIdleTimeout(50*time.Millisecond))
	runWithin(t, c, context.Background())

	assert.Equal(t, []string{"open", "error", "close"}, log.calls)
}

func TestConnectionDrivesExchange(t *testing.T) {
	endpoint := newTestServer(t, func(conn *websocket.Conn, req OutboundRequest) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","data":"Hi"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","data":" there"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"end","data":{"message_id":"m1","session_id":"s1","title":"Hello"}}`))
		closeNormally(conn)
	})

	sink := &recordingSink{}
	e := NewExchange(NewOutboundRequest("Hello", nil, nil, "", nil), ExchangeOptions{Sink: sink})
	c := NewConnection(nil, endpoint, e.Request, e.Callbacks())
	e.Attach(c)
	runWithin(t, c, context.Background())

	<-e.Done()
	s := e.State()
	assert.Equal(t, StatusComplete, s.Status)
	assert.Equal(t, "Hi there", s.Display)
	assert.Equal(t, "m1", s.MessageID)
}
