package chatbot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// OutboundRequest is the single frame a client sends after the connection opens
type OutboundRequest struct {
	Message       string   `json:"message"`
	SessionID     *string  `json:"sessionId"`
	SelectedFiles []string `json:"selectedFiles"`
	LLM           string   `json:"llm"`
	Activities    []string `json:"activities,omitempty"`
}

// NewOutboundRequest copies its arguments so the request cannot change after it is built
func NewOutboundRequest(message string, sessionID *string, selectedFiles []string, llm string, activities []string) OutboundRequest {
	req := OutboundRequest{
		Message:       message,
		SelectedFiles: append([]string{}, selectedFiles...),
		LLM:           llm,
	}
	if sessionID != nil {
		id := *sessionID
		req.SessionID = &id
	}
	if len(activities) > 0 {
		req.Activities = append([]string{}, activities...)
	}
	return req
}

// EventType is the "type" discriminator of an inbound frame
type EventType string

// Event types
const (
	EventTypeText        EventType = "text"
	EventTypeSource      EventType = "source"
	EventTypeRoute       EventType = "route"
	EventTypeHiddenRoute EventType = "hidden-route"
	EventTypeActivity    EventType = "activity"
	EventTypeInfo        EventType = "info"
	EventTypeSessionID   EventType = "session-id"
	EventTypeEnd         EventType = "end"
	EventTypeError       EventType = "error"
)

// Decoder errors
var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownEventType = errors.New("unknown event type")
)

// Event is an inbound server event. The set of implementations is closed:
// handle it with an EventVisitor.
type Event interface {
	Type() EventType
	Accept(v EventVisitor)
	isEvent()
}

// EventVisitor has one method per Event variant. Adding a variant adds a
// method here, so every handler has to be updated.
type EventVisitor interface {
	VisitText(TextEvent)
	VisitSource(SourceEvent)
	VisitRoute(RouteEvent)
	VisitHiddenRoute(HiddenRouteEvent)
	VisitActivity(ActivityEvent)
	VisitInfo(InfoEvent)
	VisitSessionID(SessionIDEvent)
	VisitEnd(EndEvent)
	VisitError(ErrorEvent)
}

// TextEvent is an incremental answer fragment
type TextEvent struct {
	Text string
}

// SourceEvent is a citation
type SourceEvent struct {
	Source Source
}

// RouteEvent names how the request was handled
type RouteEvent struct {
	Route string
}

// HiddenRouteEvent is a route reported to analytics only
type HiddenRouteEvent struct {
	Route string
}

// ActivityEvent is a progress annotation
type ActivityEvent struct {
	Activity string
}

// InfoEvent is a transient status note, e.g. "Loading"
type InfoEvent struct {
	Info string
}

// SessionIDEvent carries the server-assigned session id
type SessionIDEvent struct {
	SessionID string
}

// EndEvent marks successful completion
type EndEvent struct {
	MessageID string
	SessionID string
	Title     string
}

// ErrorEvent marks failure with a user-facing message
type ErrorEvent struct {
	Message string
}

func (TextEvent) Type() EventType        { return EventTypeText }
func (SourceEvent) Type() EventType      { return EventTypeSource }
func (RouteEvent) Type() EventType       { return EventTypeRoute }
func (HiddenRouteEvent) Type() EventType { return EventTypeHiddenRoute }
func (ActivityEvent) Type() EventType    { return EventTypeActivity }
func (InfoEvent) Type() EventType        { return EventTypeInfo }
func (SessionIDEvent) Type() EventType   { return EventTypeSessionID }
func (EndEvent) Type() EventType         { return EventTypeEnd }
func (ErrorEvent) Type() EventType       { return EventTypeError }

func (e TextEvent) Accept(v EventVisitor)        { v.VisitText(e) }
func (e SourceEvent) Accept(v EventVisitor)      { v.VisitSource(e) }
func (e RouteEvent) Accept(v EventVisitor)       { v.VisitRoute(e) }
func (e HiddenRouteEvent) Accept(v EventVisitor) { v.VisitHiddenRoute(e) }
func (e ActivityEvent) Accept(v EventVisitor)    { v.VisitActivity(e) }
func (e InfoEvent) Accept(v EventVisitor)        { v.VisitInfo(e) }
func (e SessionIDEvent) Accept(v EventVisitor)   { v.VisitSessionID(e) }
func (e EndEvent) Accept(v EventVisitor)         { v.VisitEnd(e) }
func (e ErrorEvent) Accept(v EventVisitor)       { v.VisitError(e) }

func (TextEvent) isEvent()        {}
func (SourceEvent) isEvent()      {}
func (RouteEvent) isEvent()       {}
func (HiddenRouteEvent) isEvent() {}
func (ActivityEvent) isEvent()    {}
func (InfoEvent) isEvent()        {}
func (SessionIDEvent) isEvent()   {}
func (EndEvent) isEvent()         {}
func (ErrorEvent) isEvent()       {}

// frame is the wire envelope for server to client messages
type frame struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireSource struct {
	FileName         string `json:"file_name"`
	OriginalFileName string `json:"original_file_name,omitempty"` // older servers
	URL              string `json:"url"`
	TextInAnswer     string `json:"text_in_answer,omitempty"`
}

type wireEnd struct {
	MessageID flexString `json:"message_id"`
	SessionID flexString `json:"session_id"`
	Title     string     `json:"title"`
}

// flexString accepts a JSON string or number; servers have sent both for ids
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// DecodeEvent parses a raw inbound frame. Errors wrap ErrMalformedFrame or
// ErrUnknownEventType; callers drop such frames.
func DecodeEvent(raw []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch f.Type {
	case EventTypeText, EventTypeRoute, EventTypeHiddenRoute, EventTypeActivity,
		EventTypeInfo, EventTypeSessionID, EventTypeError:
		var s string
		if err := decodeData(f, &s); err != nil {
			return nil, err
		}
		switch f.Type {
		case EventTypeText:
			return TextEvent{Text: s}, nil
		case EventTypeRoute:
			return RouteEvent{Route: s}, nil
		case EventTypeHiddenRoute:
			return HiddenRouteEvent{Route: s}, nil
		case EventTypeActivity:
			return ActivityEvent{Activity: s}, nil
		case EventTypeInfo:
			return InfoEvent{Info: s}, nil
		case EventTypeSessionID:
			return SessionIDEvent{SessionID: s}, nil
		default:
			return ErrorEvent{Message: s}, nil
		}
	case EventTypeSource:
		var src wireSource
		if err := decodeData(f, &src); err != nil {
			return nil, err
		}
		name := src.FileName
		if name == "" {
			name = src.OriginalFileName
		}
		return SourceEvent{Source: Source{FileName: name, URL: src.URL, TextInAnswer: src.TextInAnswer}}, nil
	case EventTypeEnd:
		var end wireEnd
		if err := decodeData(f, &end); err != nil {
			return nil, err
		}
		return EndEvent{MessageID: string(end.MessageID), SessionID: string(end.SessionID), Title: end.Title}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, f.Type)
}

func decodeData(f frame, v interface{}) error {
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return fmt.Errorf("%w: %s frame has no data", ErrMalformedFrame, f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, f.Type, err)
	}
	return nil
}

// EncodeEvent serializes an event in the wire format DecodeEvent reads
func EncodeEvent(e Event) ([]byte, error) {
	enc := &encoder{}
	e.Accept(enc)
	data, err := json.Marshal(enc.data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", e.Type(), err)
	}
	return json.Marshal(frame{Type: e.Type(), Data: data})
}

type encoder struct {
	data interface{}
}

func (e *encoder) VisitText(ev TextEvent)               { e.data = ev.Text }
func (e *encoder) VisitRoute(ev RouteEvent)             { e.data = ev.Route }
func (e *encoder) VisitHiddenRoute(ev HiddenRouteEvent) { e.data = ev.Route }
func (e *encoder) VisitActivity(ev ActivityEvent)       { e.data = ev.Activity }
func (e *encoder) VisitInfo(ev InfoEvent)               { e.data = ev.Info }
func (e *encoder) VisitSessionID(ev SessionIDEvent)     { e.data = ev.SessionID }
func (e *encoder) VisitError(ev ErrorEvent)             { e.data = ev.Message }

func (e *encoder) VisitSource(ev SourceEvent) {
	e.data = wireSource{FileName: ev.Source.FileName, URL: ev.Source.URL, TextInAnswer: ev.Source.TextInAnswer}
}

func (e *encoder) VisitEnd(ev EndEvent) {
	e.data = struct {
		MessageID string `json:"message_id"`
		SessionID string `json:"session_id"`
		Title     string `json:"title"`
	}{ev.MessageID, ev.SessionID, ev.Title}
}
