package chatbot

// RetryMessage replaces the answer text when an exchange fails
const RetryMessage = "There was a problem. Please try sending this message again."

// ResponseCompleteLabel is announced by the live region when the transport closes
const ResponseCompleteLabel = "Response complete"

// RouteAnalyticsEvent is the analytics event name sent when a route is chosen
const RouteAnalyticsEvent = "Chat-message-route"

// Status is the lifecycle state of an exchange
type Status int

// Statuses. Stopped, Complete and Error are terminal.
const (
	StatusIdle Status = iota
	StatusStreaming
	StatusStopped
	StatusComplete
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStreaming:
		return "streaming"
	case StatusStopped:
		return "stopped"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave s
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusComplete || s == StatusError
}

// Source is a document backing part of the answer
type Source struct {
	FileName     string `json:"file_name"`
	URL          string `json:"url"`
	TextInAnswer string `json:"text_in_answer,omitempty"`
}

// State is the state of one question/answer exchange
type State struct {
	Status        Status
	Text          string // accumulated answer text
	Display       string // what the answer area currently shows
	Sources       []Source
	SessionID     string
	Activities    []string
	Route         string
	RouteNotified bool
	Info          string
	MessageID     string
	Title         string
	ErrorMessage  string
	Closed        bool
}

// Clone returns a deep copy of s
func (s State) Clone() State {
	c := s
	c.Sources = append([]Source(nil), s.Sources...)
	c.Activities = append([]string(nil), s.Activities...)
	return c
}

// Input drives Transition
type Input interface {
	isInput()
}

// Opened is the transport-open input; the request has been sent
type Opened struct{}

// Received is a decoded inbound event
type Received struct {
	Event Event
}

// TransportFailed is a transport error
type TransportFailed struct {
	Err error
}

// Closed is the transport close
type Closed struct{}

// Cancelled is a user cancellation
type Cancelled struct{}

func (Opened) isInput()          {}
func (Received) isInput()        {}
func (TransportFailed) isInput() {}
func (Closed) isInput()          {}
func (Cancelled) isInput()       {}

// Effect is an output of Transition for collaborators to act on
type Effect interface {
	isEffect()
}

// ResponseStarted fires when streaming begins
type ResponseStarted struct{}

// TextChanged carries the full text for the answer area
type TextChanged struct {
	Text string
}

// SourcesChanged carries the whole citation list
type SourcesChanged struct {
	Sources []Source
}

// RouteShown sets the visible route label
type RouteShown struct {
	Route string
}

// AnalyticsEvent is a fire-and-forget analytics notification
type AnalyticsEvent struct {
	Name  string
	Props map[string]string
}

// ActivitiesChanged carries every activity line, oldest first
type ActivitiesChanged struct {
	Lines []string
}

// InfoShown sets the transient status note
type InfoShown struct {
	Text string
}

// SessionAssigned stores the authoritative session id
type SessionAssigned struct {
	ID string
}

// CitationsShown enables the "view details" affordance
type CitationsShown struct {
	MessageID  string
	HasSources bool
}

// FeedbackShown enables feedback collection
type FeedbackShown struct {
	MessageID string
}

// ExchangeEnded is broadcast for history and title collaborators
type ExchangeEnded struct {
	Title     string
	SessionID string
}

// ErrorShown shows the error banner
type ErrorShown struct {
	Message string
}

// ResponseCompleted hides the loading indicator and marks the live region
type ResponseCompleted struct {
	Label string
}

// StreamingStopped is broadcast for send/stop controls
type StreamingStopped struct{}

// ConnectionClosed asks the runtime to close the connection
type ConnectionClosed struct{}

// ContentGrew notifies the scroll controller
type ContentGrew struct{}

func (ResponseStarted) isEffect()   {}
func (TextChanged) isEffect()       {}
func (SourcesChanged) isEffect()    {}
func (RouteShown) isEffect()        {}
func (AnalyticsEvent) isEffect()    {}
func (ActivitiesChanged) isEffect() {}
func (InfoShown) isEffect()         {}
func (SessionAssigned) isEffect()   {}
func (CitationsShown) isEffect()    {}
func (FeedbackShown) isEffect()     {}
func (ExchangeEnded) isEffect()     {}
func (ErrorShown) isEffect()        {}
func (ResponseCompleted) isEffect() {}
func (StreamingStopped) isEffect()  {}
func (ConnectionClosed) isEffect()  {}
func (ContentGrew) isEffect()       {}

// Transition applies in to s and returns the next state and the effects to
// perform, in order. It does not modify s.
func Transition(s State, in Input) (State, []Effect) {
	next := s.Clone()

	switch in := in.(type) {
	case Opened:
		if next.Status != StatusIdle {
			return next, nil
		}
		next.Status = StatusStreaming
		return next, []Effect{ResponseStarted{}}

	case Received:
		if in.Event == nil {
			return next, nil
		}
		a := &applier{state: next}
		in.Event.Accept(a)
		return a.state, a.effects

	case TransportFailed:
		if next.Status.Terminal() {
			return next, nil
		}
		return fail(next, "")

	case Closed:
		if next.Closed {
			return next, nil
		}
		next.Closed = true
		var effects []Effect
		switch next.Status {
		case StatusStreaming:
			next.Status = StatusComplete
		case StatusIdle:
			// never opened
			next, effects = fail(next, "")
		}
		effects = append(effects, ResponseCompleted{Label: ResponseCompleteLabel}, StreamingStopped{})
		return next, effects

	case Cancelled:
		if next.Status != StatusStreaming {
			return next, nil
		}
		next.Status = StatusStopped
		return next, []Effect{ConnectionClosed{}}
	}

	return next, nil
}

func fail(s State, serverMessage string) (State, []Effect) {
	s.Status = StatusError
	s.Display = RetryMessage
	s.ErrorMessage = serverMessage
	effects := []Effect{TextChanged{Text: RetryMessage}}
	if serverMessage != "" {
		effects = append(effects, ErrorShown{Message: serverMessage})
	}
	return s, effects
}

// applier applies one event to a state it owns
type applier struct {
	state   State
	effects []Effect
}

func (a *applier) emit(effects ...Effect) {
	a.effects = append(a.effects, effects...)
}

func (a *applier) streaming() bool {
	return a.state.Status == StatusStreaming
}

func (a *applier) VisitText(ev TextEvent) {
	if !a.streaming() {
		return
	}
	a.state.Text += ev.Text
	a.state.Display = a.state.Text
	a.emit(TextChanged{Text: a.state.Text}, ContentGrew{})
}

func (a *applier) VisitSource(ev SourceEvent) {
	if !a.streaming() {
		return
	}
	a.state.Sources = append(a.state.Sources, ev.Source)
	a.emit(SourcesChanged{Sources: append([]Source(nil), a.state.Sources...)}, ContentGrew{})
}

func (a *applier) VisitRoute(ev RouteEvent) {
	if !a.streaming() {
		return
	}
	a.state.Route = ev.Route
	a.emit(RouteShown{Route: ev.Route})
	a.notifyRoute(ev.Route)
}

func (a *applier) VisitHiddenRoute(ev HiddenRouteEvent) {
	if !a.streaming() {
		return
	}
	a.notifyRoute(ev.Route)
}

func (a *applier) notifyRoute(route string) {
	if a.state.RouteNotified {
		return
	}
	a.state.RouteNotified = true
	a.emit(AnalyticsEvent{Name: RouteAnalyticsEvent, Props: map[string]string{"route": route}})
}

func (a *applier) VisitActivity(ev ActivityEvent) {
	if !a.streaming() {
		return
	}
	a.state.Activities = append(a.state.Activities, ev.Activity)
	a.emit(ActivitiesChanged{Lines: append([]string(nil), a.state.Activities...)}, ContentGrew{})
}

func (a *applier) VisitInfo(ev InfoEvent) {
	if !a.streaming() {
		return
	}
	a.state.Info = ev.Info
	a.emit(InfoShown{Text: ev.Info})
}

func (a *applier) VisitSessionID(ev SessionIDEvent) {
	if !a.streaming() {
		return
	}
	a.state.SessionID = ev.SessionID
	a.emit(SessionAssigned{ID: ev.SessionID})
}

func (a *applier) VisitEnd(ev EndEvent) {
	if !a.streaming() {
		return
	}
	a.state.Status = StatusComplete
	a.state.MessageID = ev.MessageID
	a.state.Title = ev.Title
	if ev.SessionID != "" {
		a.state.SessionID = ev.SessionID
	}
	a.emit(
		CitationsShown{MessageID: ev.MessageID, HasSources: len(a.state.Sources) > 0},
		FeedbackShown{MessageID: ev.MessageID},
		ExchangeEnded{Title: ev.Title, SessionID: a.state.SessionID},
	)
}

func (a *applier) VisitError(ev ErrorEvent) {
	if a.state.Status.Terminal() {
		return
	}
	var effects []Effect
	a.state, effects = fail(a.state, ev.Message)
	a.emit(effects...)
}
