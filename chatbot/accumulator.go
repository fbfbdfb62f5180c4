package chatbot

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/korylprince/redbox-chat/events"
)

// publishTimeout bounds one bus publish made while dispatching effects
const publishTimeout = 2 * time.Second

// Sink renders an exchange. Update receives the full current text on every
// call; the sink owns markdown conversion and sanitization.
type Sink interface {
	Update(text string)
	SetSources(sources []Source)
	ShowRoute(route string)
	SetActivities(lines []string)
	ShowInfo(text string)
	ShowCitations(messageID string, hasSources bool)
	ShowFeedback(messageID string)
	ShowError(message string)
	Complete(label string)
}

// Analytics receives fire-and-forget named events
type Analytics interface {
	Track(name string, props map[string]string)
}

// Publisher broadcasts to sibling components
type Publisher interface {
	Publish(ctx context.Context, topic events.Topic, data interface{}) error
}

// SessionTracker stores the server-assigned session id
type SessionTracker interface {
	SetID(id string)
}

// Follower keeps new content in view
type Follower interface {
	Follow()
}

// ExchangeOptions are the collaborators of an Exchange. Only Sink is
// required; a nil Sink discards output.
type ExchangeOptions struct {
	Sink      Sink
	Bus       Publisher
	Session   SessionTracker
	Analytics Analytics
	Scroll    Follower
	Logger    *log.Logger
}

// Exchange owns the state of one question/answer pair and is its only writer
type Exchange struct {
	ID      string
	Request OutboundRequest

	opts ExchangeOptions

	mu        sync.Mutex
	state     State
	closer    io.Closer
	canceller *Canceller
	done      chan struct{}
	doneSent  bool
}

// NewExchange creates a new idle Exchange for req
func NewExchange(req OutboundRequest, opts ExchangeOptions) *Exchange {
	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	e := &Exchange{
		ID:      uuid.NewString(),
		Request: req,
		opts:    opts,
		done:    make(chan struct{}),
	}
	e.canceller = NewCanceller(e)
	return e
}

// Attach sets the connection closed on cancellation
func (e *Exchange) Attach(c io.Closer) {
	e.mu.Lock()
	e.closer = c
	e.mu.Unlock()
}

// Callbacks returns Connection callbacks that feed this Exchange
func (e *Exchange) Callbacks() Callbacks {
	return Callbacks{
		OnOpen:  e.HandleOpen,
		OnFrame: e.HandleFrame,
		OnError: e.HandleError,
		OnClose: e.HandleClose,
	}
}

// Canceller returns the cancellation controller bound to e
func (e *Exchange) Canceller() *Canceller {
	return e.canceller
}

// Follower returns the scroll follower, or nil when the exchange has no viewport
func (e *Exchange) Follower() Follower {
	return e.opts.Scroll
}

// State returns a copy of the current state
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Status returns the current status
func (e *Exchange) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status
}

// Done is closed once the transport has closed
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// HandleOpen applies transport-open
func (e *Exchange) HandleOpen() {
	e.apply(Opened{})
}

// HandleFrame decodes and applies one inbound frame. Malformed frames are logged and dropped.
func (e *Exchange) HandleFrame(raw []byte) {
	ev, err := DecodeEvent(raw)
	if err != nil {
		e.opts.Logger.Printf("exchange %s: dropping frame: %v", e.ID, err)
		return
	}
	e.apply(Received{Event: ev})
}

// HandleError applies a transport failure
func (e *Exchange) HandleError(err error) {
	e.opts.Logger.Printf("exchange %s: transport error: %v", e.ID, err)
	e.apply(TransportFailed{Err: err})
}

// HandleClose applies transport close
func (e *Exchange) HandleClose() {
	e.apply(Closed{})
}

// Cancel stops a streaming exchange and closes its connection. Cancelling
// twice, or after the exchange ended, does nothing.
func (e *Exchange) Cancel() {
	e.apply(Cancelled{})
}

func (e *Exchange) apply(in Input) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.state.Status
	next, effects := Transition(e.state, in)
	e.state = next
	if prev != next.Status {
		e.opts.Logger.Printf("exchange %s: %s -> %s", e.ID, prev, next.Status)
	}

	for _, eff := range effects {
		e.dispatch(eff)
	}

	if e.state.Closed && !e.doneSent {
		e.doneSent = true
		close(e.done)
	}
}

// dispatch runs with e.mu held; collaborators must not call back into e
func (e *Exchange) dispatch(eff Effect) {
	sink := e.opts.Sink
	switch eff := eff.(type) {
	case ResponseStarted:
		e.publish(events.TopicResponseStart, nil)
	case TextChanged:
		sink.Update(eff.Text)
	case SourcesChanged:
		sink.SetSources(eff.Sources)
	case RouteShown:
		sink.ShowRoute(eff.Route)
	case AnalyticsEvent:
		e.track(eff)
	case ActivitiesChanged:
		sink.SetActivities(eff.Lines)
	case InfoShown:
		sink.ShowInfo(eff.Text)
	case SessionAssigned:
		if e.opts.Session != nil {
			e.opts.Session.SetID(eff.ID)
		}
	case CitationsShown:
		sink.ShowCitations(eff.MessageID, eff.HasSources)
	case FeedbackShown:
		sink.ShowFeedback(eff.MessageID)
	case ExchangeEnded:
		if e.opts.Session != nil && eff.SessionID != "" {
			e.opts.Session.SetID(eff.SessionID)
		}
		e.publish(events.TopicResponseEnd, events.ResponseEnd{Title: eff.Title, SessionID: eff.SessionID})
	case ErrorShown:
		sink.ShowError(eff.Message)
	case ResponseCompleted:
		sink.Complete(eff.Label)
	case StreamingStopped:
		e.publish(events.TopicStreamingStopped, nil)
	case ConnectionClosed:
		if e.closer != nil {
			if err := e.closer.Close(); err != nil {
				e.opts.Logger.Printf("exchange %s: close: %v", e.ID, err)
			}
		}
	case ContentGrew:
		if e.opts.Scroll != nil {
			e.opts.Scroll.Follow()
		}
	}
}

func (e *Exchange) publish(topic events.Topic, data interface{}) {
	if e.opts.Bus == nil {
		return
	}
	// runs under e.mu
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.opts.Bus.Publish(ctx, topic, data); err != nil {
		e.opts.Logger.Printf("exchange %s: publish %s: %v", e.ID, topic, err)
	}
}

func (e *Exchange) track(ev AnalyticsEvent) {
	if e.opts.Analytics == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Printf("exchange %s: analytics %s: %v", e.ID, ev.Name, r)
		}
	}()
	e.opts.Analytics.Track(ev.Name, ev.Props)
}

type discardSink struct{}

func (discardSink) Update(string)              {}
func (discardSink) SetSources([]Source)        {}
func (discardSink) ShowRoute(string)           {}
func (discardSink) SetActivities([]string)     {}
func (discardSink) ShowInfo(string)            {}
func (discardSink) ShowCitations(string, bool) {}
func (discardSink) ShowFeedback(string)        {}
func (discardSink) ShowError(string)           {}
func (discardSink) Complete(string)            {}
