// Package gocommand forwards verified Kick webhook events onto the go-command
// dispatcher so handlers can be written as commands.
package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-kick/core"
	"github.com/goliatone/go-kick/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

const messageTypePrefix = "kick.webhook."

// Message carries one decoded webhook event. Commands subscribe per payload
// type, e.g. command.CommandFunc[gocommand.Message[*webhooks.ChatMessageSent]].
type Message[T any] struct {
	Meta  webhooks.EventMeta
	Event T
}

func (m Message[T]) Type() string {
	return messageTypePrefix + strings.TrimSpace(m.Meta.Type)
}

func (m Message[T]) Validate() error {
	if strings.TrimSpace(m.Meta.Type) == "" {
		return fmt.Errorf("gocommand: webhook event type is required")
	}
	return nil
}

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// Bridge owns the event bus subscriptions that feed the dispatcher.
type Bridge struct {
	bus    *core.EventBus
	logger glog.Logger

	mu   sync.Mutex
	subs []core.Subscription
}

func NewBridge(bus *core.EventBus, logger glog.Logger) (*Bridge, error) {
	if bus == nil {
		return nil, fmt.Errorf("gocommand: event bus is required")
	}
	return &Bridge{bus: bus, logger: glog.Ensure(logger)}, nil
}

// Forward dispatches every T emitted under eventType as a Message[T].
func Forward[T any](b *Bridge, eventType string) error {
	if b == nil || b.bus == nil {
		return fmt.Errorf("gocommand: bridge is not configured")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("gocommand: event type is required")
	}
	sub, err := core.On[T](b.bus, eventType, func(ctx context.Context, event T) {
		msg := Message[T]{Event: event}
		if carrier, ok := any(event).(interface{ Metadata() webhooks.EventMeta }); ok {
			msg.Meta = carrier.Metadata()
		}
		if msg.Meta.Type == "" {
			msg.Meta.Type = eventType
		}
		if err := ValidateMessageContract(msg); err != nil {
			b.logFailure(ctx, msg, err)
			return
		}
		if err := commanddispatcher.Dispatch(ctx, msg); err != nil {
			b.logFailure(ctx, msg, err)
		}
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// ForwardKnownEvents forwards every typed Kick webhook event.
func ForwardKnownEvents(b *Bridge) error {
	forwarders := []func(*Bridge) error{
		func(b *Bridge) error { return Forward[*webhooks.ChatMessageSent](b, webhooks.EventChatMessageSent) },
		func(b *Bridge) error { return Forward[*webhooks.ChannelFollowed](b, webhooks.EventChannelFollowed) },
		func(b *Bridge) error {
			return Forward[*webhooks.ChannelSubscription](b, webhooks.EventChannelSubscriptionRenewal)
		},
		func(b *Bridge) error { return Forward[*webhooks.ChannelSubscription](b, webhooks.EventChannelSubscriptionNew) },
		func(b *Bridge) error {
			return Forward[*webhooks.ChannelSubscriptionGifts](b, webhooks.EventChannelSubscriptionGifts)
		},
		func(b *Bridge) error {
			return Forward[*webhooks.LivestreamStatusUpdated](b, webhooks.EventLivestreamStatusUpdated)
		},
		func(b *Bridge) error {
			return Forward[*webhooks.LivestreamMetadataUpdated](b, webhooks.EventLivestreamMetadataUpdated)
		},
		func(b *Bridge) error { return Forward[*webhooks.ModerationBanned](b, webhooks.EventModerationBanned) },
		func(b *Bridge) error { return Forward[*webhooks.KicksGifted](b, webhooks.EventKicksGifted) },
	}
	for _, forward := range forwarders {
		if err := forward(b); err != nil {
			b.Close()
			return err
		}
	}
	return nil
}

// Close removes every subscription made through the bridge.
func (b *Bridge) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		b.bus.Unsubscribe(sub)
	}
}

func (b *Bridge) logFailure(ctx context.Context, msg command.Message, err error) {
	core.LogWithLevel(ctx, b.logger, "error", "webhook command dispatch failed", map[string]any{
		"message_type": msg.Type(),
		"error":        err.Error(),
	})
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Handle subscribes fn to Message[T] on the go-command dispatcher.
func Handle[T any](fn func(ctx context.Context, msg Message[T]) error, runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(command.CommandFunc[Message[T]](fn), runnerOpts...)
}

// RegisterAndSubscribe registers cmd with the adapter registry and the
// dispatcher, undoing the subscription when registration fails.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
