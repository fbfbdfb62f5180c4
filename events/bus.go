// Package events carries the broadcasts that chat components exchange with
// each other (stop-all, response start/end) over explicit subscriptions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Topic names a broadcast channel.
type Topic string

// Topics published by chat components
const (
	TopicStopStreaming    Topic = "stop-streaming"
	TopicResponseStart    Topic = "chat-response-start"
	TopicResponseEnd      Topic = "chat-response-end"
	TopicStreamingStopped Topic = "streaming-stopped"
)

// ResponseEnd is the payload of TopicResponseEnd.
type ResponseEnd struct {
	Title     string `json:"title"`
	SessionID string `json:"session_id"`
}

// Event is a single broadcast.
type Event struct {
	ID        string          `json:"id"`
	Topic     Topic           `json:"topic"`
	Origin    string          `json:"origin"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.ID)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Topic, err)
	}
	return nil
}

type subscriber struct {
	ch     chan Event
	topics map[Topic]struct{}
}

func (s *subscriber) wants(t Topic) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[t]
	return ok
}

// Bus multiplexes events to local subscribers, optionally fanned out through Redis.
type Bus struct {
	client redis.UniversalClient
	logger *log.Logger
	ch     string
	origin string

	cancel context.CancelFunc

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

// Options configure the bus.
type Options struct {
	Client  redis.UniversalClient
	Logger  *log.Logger
	Channel string
}

// NewBus creates a new event bus. With a nil Client the bus is process-local.
func NewBus(opts Options) *Bus {
	channel := opts.Channel
	if channel == "" {
		channel = "redbox-chat-events"
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		client:      opts.Client,
		logger:      opts.Logger,
		ch:          channel,
		origin:      uuid.NewString(),
		cancel:      cancel,
		subscribers: make(map[*subscriber]struct{}),
	}
	if bus.client != nil {
		go bus.observeRedis(ctx)
	}
	return bus
}

// Close stops the Redis observer. Local subscriptions stay usable.
func (b *Bus) Close() {
	b.cancel()
}

// Publish broadcasts data on topic to local subscribers, then to Redis. A
// Redis error is returned after local delivery.
func (b *Bus) Publish(ctx context.Context, topic Topic, data interface{}) error {
	evt := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Origin:    b.origin,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", topic, err)
		}
		evt.Data = raw
	}

	// local subscribers never wait on, or lose events to, Redis
	b.broadcast(evt)

	if b.client != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.client.Publish(ctx, b.ch, payload).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
	}
	return nil
}

// Subscribe registers a subscriber for the given topics (all topics when none
// are given) and returns a channel plus a cancel func. The channel is closed
// by cancel or when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topics ...Topic) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 16)}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, sub)
			close(sub.ch)
			b.mu.Unlock()
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return sub.ch, cancel
}

func (b *Bus) broadcast(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if !sub.wants(evt.Topic) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			if b.logger != nil {
				b.logger.Printf("events: dropping %s event %s (subscriber backlog)", evt.Topic, evt.ID)
			}
		}
	}
}

func (b *Bus) observeRedis(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, b.ch)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if b.logger != nil {
				b.logger.Printf("events: redis subscriber error: %v", err)
			}
			time.Sleep(2 * time.Second)
			continue
		}

		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			if b.logger != nil {
				b.logger.Printf("events: invalid payload: %v", err)
			}
			continue
		}
		// already delivered locally by Publish
		if evt.Origin == b.origin {
			continue
		}
		b.broadcast(evt)
	}
}
