package chatbot

import (
	"context"

	"github.com/korylprince/redbox-chat/events"
)

// Subscriber is the subscribing side of events.Bus
type Subscriber interface {
	Subscribe(ctx context.Context, topics ...events.Topic) (<-chan events.Event, func())
}

type cancelTarget interface {
	Cancel()
	Status() Status
	Done() <-chan struct{}
}

// Canceller stops one exchange on Escape or on a stop-streaming broadcast.
// Cancellation is terminal; repeated signals do nothing.
type Canceller struct {
	target cancelTarget
}

// NewCanceller creates a new Canceller for target
func NewCanceller(target cancelTarget) *Canceller {
	return &Canceller{target: target}
}

// KeyDown handles a key press on the exchange's element and reports whether it cancelled
func (c *Canceller) KeyDown(key string, focused bool) bool {
	if key != "Escape" || !focused || c.target.Status() != StatusStreaming {
		return false
	}
	c.target.Cancel()
	return true
}

// Watch subscribes to stop-streaming broadcasts. The subscription is in place
// when Watch returns and is dropped once the exchange is done or ctx ends.
func (c *Canceller) Watch(ctx context.Context, bus Subscriber) {
	if bus == nil {
		return
	}
	ch, unsubscribe := bus.Subscribe(ctx, events.TopicStopStreaming)
	go func() {
		defer unsubscribe()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				c.target.Cancel()
			case <-c.target.Done():
				return
			}
		}
	}()
}
