package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/korylprince/redbox-chat/api"
	"github.com/korylprince/redbox-chat/chatbot"
	"github.com/korylprince/redbox-chat/events"
	"github.com/korylprince/redbox-chat/metrics"
	"github.com/korylprince/redbox-chat/replay"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

//StreamHandler answers one chat request per websocket connection by playing a replay script
type StreamHandler struct {
	db          *sql.DB
	script      *replay.Script
	frameRate   rate.Limit
	titleLength int
	logWriter   io.Writer
	bus         Publisher
}

//Publisher broadcasts chat events
type Publisher interface {
	Publish(ctx context.Context, topic events.Topic, data interface{}) error
}

//WithBus publishes chat-response-end events to bus when a stream completes
func (h *StreamHandler) WithBus(bus Publisher) *StreamHandler {
	h.bus = bus
	return h
}

//NewStreamHandler returns a new StreamHandler. frameRate is in frames per second; 0 means unpaced.
func NewStreamHandler(db *sql.DB, script *replay.Script, frameRate float64, titleLength int, w io.Writer) *StreamHandler {
	if script == nil {
		script = replay.DefaultScript()
	}
	limit := rate.Inf
	if frameRate > 0 {
		limit = rate.Limit(frameRate)
	}
	return &StreamHandler{db: db, script: script, frameRate: limit, titleLength: titleLength, logWriter: w}
}

//ServeHTTP handles the websocket upgrade and plays the script
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp := h.serve(w, r)
	writeLog(h.logWriter, r, start, resp)
}

//exchange is what the server saves for the AI side of a stream
type exchange struct {
	text    strings.Builder
	route   string
	sources []*api.Source
}

func (e *exchange) add(body []byte) {
	ev, err := chatbot.DecodeEvent(body)
	if err != nil {
		return
	}
	switch ev := ev.(type) {
	case chatbot.TextEvent:
		e.text.WriteString(ev.Text)
	case chatbot.RouteEvent:
		e.route = ev.Route
	case chatbot.SourceEvent:
		e.sources = append(e.sources, &api.Source{FileName: ev.Source.FileName, URL: ev.Source.URL, TextInAnswer: ev.Source.TextInAnswer})
	}
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request) *handlerResponse {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return &handlerResponse{Code: http.StatusBadRequest, Err: fmt.Errorf("Could not upgrade connection: %v", err)}
	}
	defer conn.Close()

	ok := &handlerResponse{Code: http.StatusSwitchingProtocols}

	var req chatbot.OutboundRequest
	if err = conn.ReadJSON(&req); err != nil {
		h.sendError(conn, "Failed to read message")
		metrics.ObserveStream("rejected")
		return &handlerResponse{Code: http.StatusSwitchingProtocols, Err: fmt.Errorf("Could not read request: %v", err)}
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		h.sendError(conn, "Message cannot be empty")
		h.closeNormally(conn, nil)
		metrics.ObserveStream("rejected")
		return ok
	}

	//the client never writes again; reading processes its close frame
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sessionID, title, isNew, err := h.startSession(ctx, req.SessionID, message)
	if err != nil {
		var e *api.Error
		if errors.As(err, &e) && e.Type == api.ErrorTypeUser {
			h.sendError(conn, "Invalid session id")
		} else {
			h.sendError(conn, "Failed to save message")
		}
		h.closeNormally(conn, ctx.Done())
		metrics.ObserveStream("error")
		return &handlerResponse{Code: http.StatusSwitchingProtocols, Err: err}
	}

	if isNew {
		if err = h.send(conn, chatbot.SessionIDEvent{SessionID: sessionID}); err != nil {
			return &handlerResponse{Code: http.StatusSwitchingProtocols, Err: err}
		}
	}

	frames, err := h.script.Frames(message)
	if err != nil {
		h.sendError(conn, "Failed to play script")
		h.closeNormally(conn, ctx.Done())
		return &handlerResponse{Code: http.StatusSwitchingProtocols, Err: err}
	}

	limiter := rate.NewLimiter(h.frameRate, 1)
	answer := new(exchange)
	for _, f := range frames {
		if err = limiter.Wait(ctx); err != nil {
			//client closed the connection
			metrics.ObserveStream("cancelled")
			return ok
		}
		if err = conn.WriteMessage(websocket.TextMessage, f.Body); err != nil {
			metrics.ObserveStream("cancelled")
			return &handlerResponse{Code: http.StatusSwitchingProtocols, Err: fmt.Errorf("Could not write frame: %v", err)}
		}
		metrics.ObserveFrame(f.Type)

		if f.Type == string(chatbot.EventTypeError) {
			h.closeNormally(conn, ctx.Done())
			metrics.ObserveStream("error")
			return ok
		}
		answer.add(f.Body)
	}

	var messageID string
	err = withTx(ctx, h.db, func(ctx context.Context) error {
		messageID, err = api.CreateMessage(ctx, &api.Message{
			SessionID: sessionID,
			Role:      api.RoleAI,
			Text:      answer.text.String(),
			Route:     answer.route,
			Sources:   answer.sources,
		})
		if err != nil {
			return err
		}
		if title == "" {
			title = api.FallbackTitle(message, h.titleLength)
			return api.UpdateSessionName(ctx, sessionID, title, h.titleLength)
		}
		return nil
	})
	if err != nil {
		h.sendError(conn, "Failed to save response")
		h.closeNormally(conn, ctx.Done())
		metrics.ObserveStream("error")
		return &handlerResponse{Code: http.StatusSwitchingProtocols, Err: err}
	}

	if err = h.send(conn, chatbot.EndEvent{MessageID: messageID, SessionID: sessionID, Title: title}); err != nil {
		return &handlerResponse{Code: http.StatusSwitchingProtocols, Err: err}
	}
	h.closeNormally(conn, ctx.Done())
	metrics.ObserveStream("complete")

	if h.bus != nil {
		if err = h.bus.Publish(context.Background(), events.TopicResponseEnd, events.ResponseEnd{Title: title, SessionID: sessionID}); err != nil {
			log.Printf("Failed to publish response end: %v", err)
		}
	}

	return ok
}

//startSession loads or creates the session and saves the user message.
//An unknown session id is created as given.
func (h *StreamHandler) startSession(ctx context.Context, requested *string, message string) (id, title string, isNew bool, err error) {
	err = withTx(ctx, h.db, func(ctx context.Context) error {
		if requested != nil && *requested != "" {
			s, err := api.ReadSession(ctx, *requested, false)
			if err != nil {
				return err
			}
			if s != nil {
				id, title = s.ID, s.Name
			}
		}

		if id == "" {
			s := new(api.ChatSession)
			if requested != nil {
				s.ID = *requested
			}
			if id, err = api.CreateSession(ctx, s); err != nil {
				return err
			}
			isNew = true
		}

		_, err := api.CreateMessage(ctx, &api.Message{SessionID: id, Role: api.RoleUser, Text: message})
		return err
	})
	return id, title, isNew, err
}

func (h *StreamHandler) send(conn *websocket.Conn, ev chatbot.Event) error {
	body, err := chatbot.EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err = conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return fmt.Errorf("Could not write %s frame: %v", ev.Type(), err)
	}
	metrics.ObserveFrame(string(ev.Type()))
	return nil
}

func (h *StreamHandler) sendError(conn *websocket.Conn, msg string) {
	if err := h.send(conn, chatbot.ErrorEvent{Message: msg}); err != nil {
		log.Printf("Failed to send error: %v", err)
	}
}

//closeNormally sends a normal close frame and waits briefly for the reply, signalled by done
func (h *StreamHandler) closeNormally(conn *websocket.Conn, done <-chan struct{}) {
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err != nil || done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
