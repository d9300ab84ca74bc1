package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const EventWildcard = "*"

const (
	EventTokenSet           = "token.set"
	// EventTokenRefreshed is emitted inside the shared refresh. Handlers must
	// not call GetNewToken on the refreshed token.
	EventTokenRefreshed     = "token.refreshed"
	EventTokenRefreshFailed = "token.refresh_failed"
	EventAuthTokenSet       = "auth_token.set"
	EventPublicKeyLoaded    = "public_key.loaded"
)

// IsReservedEvent reports whether name is the wildcard or a session lifecycle
// event. Webhook deliveries may not be emitted under these names.
func IsReservedEvent(name string) bool {
	switch strings.TrimSpace(name) {
	case EventWildcard, EventTokenSet, EventTokenRefreshed, EventTokenRefreshFailed, EventAuthTokenSet, EventPublicKeyLoaded:
		return true
	default:
		return false
	}
}

type Event struct {
	Name       string
	Payload    any
	OccurredAt time.Time
}

type EventHandler func(ctx context.Context, event Event)

type Subscription struct {
	ID   string
	Name string
}

type subscriber struct {
	id      string
	name    string
	handler EventHandler
}

// EventBus delivers named events synchronously to subscribers in
// registration order. Subscribers to EventWildcard receive every event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	now         func() time.Time
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Subscribe(name string, handler EventHandler) (Subscription, error) {
	if b == nil {
		return Subscription{}, badInputError("core: event bus is not configured", nil)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Subscription{}, badInputError("core: event name is required", nil)
	}
	if handler == nil {
		return Subscription{}, badInputError("core: event handler is required", map[string]any{"event": name})
	}
	sub := subscriber{id: uuid.NewString(), name: name, handler: handler}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()
	return Subscription{ID: sub.id, Name: name}, nil
}

// Unsubscribe removes the subscription and reports whether it was present.
func (b *EventBus) Unsubscribe(sub Subscription) bool {
	if b == nil || sub.ID == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.subscribers {
		if existing.id == sub.ID {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Emit delivers payload to every matching subscriber and returns how many
// handlers ran.
func (b *EventBus) Emit(ctx context.Context, name string, payload any) int {
	if b == nil {
		return 0
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.RLock()
	matched := make([]subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.name == name || sub.name == EventWildcard {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	event := Event{Name: name, Payload: payload, OccurredAt: b.clock()}
	for _, sub := range matched {
		sub.handler(ctx, event)
	}
	return len(matched)
}

func (b *EventBus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *EventBus) clock() time.Time {
	if b.now != nil {
		return b.now().UTC()
	}
	return time.Now().UTC()
}

// On subscribes a handler typed on the event payload. Events whose payload is
// not a T are skipped.
func On[T any](bus *EventBus, name string, handler func(ctx context.Context, payload T)) (Subscription, error) {
	if handler == nil {
		return Subscription{}, badInputError("core: event handler is required", map[string]any{"event": name})
	}
	return bus.Subscribe(name, func(ctx context.Context, event Event) {
		payload, ok := event.Payload.(T)
		if !ok {
			return
		}
		handler(ctx, payload)
	})
}
