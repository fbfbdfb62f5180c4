package chatbot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, s State, inputs ...Input) (State, []Effect) {
	t.Helper()
	var all []Effect
	for _, in := range inputs {
		var effects []Effect
		s, effects = Transition(s, in)
		all = append(all, effects...)
	}
	return s, all
}

func streaming(t *testing.T) State {
	t.Helper()
	s, effects := Transition(State{}, Opened{})
	require.Equal(t, StatusStreaming, s.Status)
	require.Equal(t, []Effect{ResponseStarted{}}, effects)
	return s
}

func recv(events ...Event) []Input {
	inputs := make([]Input, len(events))
	for i, ev := range events {
		inputs[i] = Received{Event: ev}
	}
	return inputs
}

func effectsOf[T Effect](effects []Effect) []T {
	var out []T
	for _, eff := range effects {
		if v, ok := eff.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestTransitionTextOrderingWithInterleaving(t *testing.T) {
	s := streaming(t)
	s, effects := run(t, s, recv(
		TextEvent{Text: "The "},
		SourceEvent{Source: Source{FileName: "a.pdf", URL: "/f/a"}},
		TextEvent{Text: "quick "},
		ActivityEvent{Activity: "Searching documents"},
		TextEvent{Text: "fox"},
	)...)

	assert.Equal(t, "The quick fox", s.Text)
	assert.Equal(t, "The quick fox", s.Display)
	assert.Equal(t, []string{"Searching documents"}, s.Activities)

	texts := effectsOf[TextChanged](effects)
	require.Len(t, texts, 3)
	assert.Equal(t, "The ", texts[0].Text)
	assert.Equal(t, "The quick ", texts[1].Text)
	assert.Equal(t, "The quick fox", texts[2].Text)
	assert.Len(t, effectsOf[ContentGrew](effects), 5)
}

func TestTransitionDoesNotModifyInput(t *testing.T) {
	s := streaming(t)
	s, _ = Transition(s, Received{Event: SourceEvent{Source: Source{FileName: "a.pdf"}}})

	next, _ := Transition(s, Received{Event: SourceEvent{Source: Source{FileName: "b.pdf"}}})
	assert.Len(t, s.Sources, 1)
	assert.Len(t, next.Sources, 2)
}

func TestTransitionTerminalStatesAbsorb(t *testing.T) {
	terminal := map[string]State{}

	s, _ := run(t, streaming(t), recv(TextEvent{Text: "Hi"}, EndEvent{MessageID: "m1"})...)
	terminal["complete"] = s
	s, _ = run(t, streaming(t), Received{Event: TextEvent{Text: "Hi"}}, Cancelled{})
	terminal["stopped"] = s
	s, _ = run(t, streaming(t), recv(TextEvent{Text: "Hi"}, ErrorEvent{Message: "boom"})...)
	terminal["error"] = s

	late := []Input{
		Received{Event: TextEvent{Text: "late"}},
		Received{Event: SourceEvent{Source: Source{FileName: "late.pdf"}}},
		Received{Event: ActivityEvent{Activity: "late"}},
		Received{Event: RouteEvent{Route: "late"}},
		Received{Event: EndEvent{MessageID: "m2"}},
		Received{Event: ErrorEvent{Message: "late"}},
		TransportFailed{Err: errors.New("late")},
		Cancelled{},
		Opened{},
	}

	for name, s := range terminal {
		t.Run(name, func(t *testing.T) {
			for _, in := range late {
				next, effects := Transition(s, in)
				assert.Equal(t, s, next, "%T changed state", in)
				assert.Empty(t, effects, "%T emitted effects", in)
			}
		})
	}
}

func TestTransitionCloseAfterTerminalStillCompletes(t *testing.T) {
	s, _ := run(t, streaming(t), Received{Event: TextEvent{Text: "Hi"}}, Cancelled{})

	s, effects := Transition(s, Closed{})
	assert.Equal(t, StatusStopped, s.Status)
	assert.Equal(t, []Effect{ResponseCompleted{Label: ResponseCompleteLabel}, StreamingStopped{}}, effects)

	// only once
	_, effects = Transition(s, Closed{})
	assert.Empty(t, effects)
}

func TestTransitionCancelIdempotent(t *testing.T) {
	s := streaming(t)
	once, effects := Transition(s, Cancelled{})
	assert.Equal(t, StatusStopped, once.Status)
	assert.Equal(t, []Effect{ConnectionClosed{}}, effects)

	twice, effects := Transition(once, Cancelled{})
	assert.Equal(t, once, twice)
	assert.Empty(t, effects)
}

func TestTransitionCancelIgnoredWhenIdle(t *testing.T) {
	s, effects := Transition(State{}, Cancelled{})
	assert.Equal(t, StatusIdle, s.Status)
	assert.Empty(t, effects)
}

func TestTransitionErrorOverridesText(t *testing.T) {
	s, effects := run(t, streaming(t), recv(TextEvent{Text: "Partial"}, ErrorEvent{Message: "Something went wrong"})...)

	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, RetryMessage, s.Display)
	assert.Equal(t, "Partial", s.Text)
	assert.Equal(t, "Something went wrong", s.ErrorMessage)
	assert.Equal(t, []Effect{
		TextChanged{Text: "Partial"},
		ContentGrew{},
		TextChanged{Text: RetryMessage},
		ErrorShown{Message: "Something went wrong"},
	}, effects)
}

func TestTransitionErrorBeforeOpen(t *testing.T) {
	s, effects := Transition(State{}, Received{Event: ErrorEvent{Message: "Rate limited"}})
	assert.Equal(t, StatusError, s.Status)
	assert.Contains(t, effects, Effect(ErrorShown{Message: "Rate limited"}))
}

func TestTransitionEventsIgnoredBeforeOpen(t *testing.T) {
	s, effects := Transition(State{}, Received{Event: TextEvent{Text: "early"}})
	assert.Equal(t, State{}, s)
	assert.Empty(t, effects)
}

func TestTransitionTransportFailure(t *testing.T) {
	s, effects := run(t, streaming(t), Received{Event: TextEvent{Text: "Hi"}}, TransportFailed{Err: errors.New("reset")})
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, RetryMessage, s.Display)
	assert.Empty(t, effectsOf[ErrorShown](effects), "transport failures show no banner")

	s, effects = Transition(s, Closed{})
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, []Effect{ResponseCompleted{Label: ResponseCompleteLabel}, StreamingStopped{}}, effects)
}

func TestTransitionCloseWhileStreamingCompletes(t *testing.T) {
	s, _ := run(t, streaming(t), Received{Event: TextEvent{Text: "Hi"}}, Closed{})
	assert.Equal(t, StatusComplete, s.Status)
	assert.True(t, s.Closed)
	assert.Equal(t, "Hi", s.Display)
}

func TestTransitionCloseBeforeOpenFails(t *testing.T) {
	s, effects := Transition(State{}, Closed{})
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, []Effect{
		TextChanged{Text: RetryMessage},
		ResponseCompleted{Label: ResponseCompleteLabel},
		StreamingStopped{},
	}, effects)
}

func TestTransitionRouteNotifiesOnce(t *testing.T) {
	s, effects := run(t, streaming(t), recv(
		HiddenRouteEvent{Route: "search"},
		RouteEvent{Route: "chat"},
		RouteEvent{Route: "summarise"},
	)...)

	assert.Equal(t, "summarise", s.Route)
	assert.Equal(t, []RouteShown{{Route: "chat"}, {Route: "summarise"}}, effectsOf[RouteShown](effects))

	analytics := effectsOf[AnalyticsEvent](effects)
	require.Len(t, analytics, 1)
	assert.Equal(t, RouteAnalyticsEvent, analytics[0].Name)
	assert.Equal(t, map[string]string{"route": "search"}, analytics[0].Props)
}

func TestTransitionDuplicateSourcesKept(t *testing.T) {
	src := Source{FileName: "doc.pdf", URL: "/f/1"}
	s, effects := run(t, streaming(t), recv(SourceEvent{Source: src}, SourceEvent{Source: src})...)

	assert.Equal(t, []Source{src, src}, s.Sources)
	changes := effectsOf[SourcesChanged](effects)
	require.Len(t, changes, 2)
	assert.Len(t, changes[0].Sources, 1)
	assert.Len(t, changes[1].Sources, 2)
}

func TestTransitionSessionAndInfo(t *testing.T) {
	s, effects := run(t, streaming(t), recv(
		InfoEvent{Info: "Loading"},
		SessionIDEvent{SessionID: "s1"},
	)...)

	assert.Equal(t, "Loading", s.Info)
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, []Effect{InfoShown{Text: "Loading"}, SessionAssigned{ID: "s1"}}, effects)
}

func TestTransitionHappyPath(t *testing.T) {
	s, effects := run(t, streaming(t), recv(
		TextEvent{Text: "Hi"},
		TextEvent{Text: " there"},
		SourceEvent{Source: Source{FileName: "doc.pdf", URL: "/f/1"}},
		EndEvent{MessageID: "m1", SessionID: "s1", Title: "Hello"},
	)...)

	assert.Equal(t, StatusComplete, s.Status)
	assert.Equal(t, "Hi there", s.Display)
	require.Len(t, s.Sources, 1)
	assert.Equal(t, "doc.pdf", s.Sources[0].FileName)
	assert.Equal(t, "m1", s.MessageID)

	assert.Equal(t, []CitationsShown{{MessageID: "m1", HasSources: true}}, effectsOf[CitationsShown](effects))
	assert.Equal(t, []FeedbackShown{{MessageID: "m1"}}, effectsOf[FeedbackShown](effects))
	assert.Equal(t, []ExchangeEnded{{Title: "Hello", SessionID: "s1"}}, effectsOf[ExchangeEnded](effects))
}

func TestTransitionEndKeepsAssignedSession(t *testing.T) {
	s, effects := run(t, streaming(t), recv(SessionIDEvent{SessionID: "s1"}, EndEvent{MessageID: "m1"})...)
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, []ExchangeEnded{{SessionID: "s1"}}, effectsOf[ExchangeEnded](effects))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "streaming", StatusStreaming.String())
	assert.Equal(t, "unknown", Status(42).String())
	assert.False(t, StatusStreaming.Terminal())
	assert.True(t, StatusError.Terminal())
}
