package webhooks

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-kick/core"
)

func newTestDispatcher(t *testing.T, source *fakeSource, opts ...DispatcherOption) (*Dispatcher, *[]State) {
	t.Helper()
	var mu sync.Mutex
	states := []State{}
	opts = append(opts, WithStateObserver(func(state State, _ Envelope) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	}))
	dispatcher, err := NewDispatcher(source, opts...)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher, &states
}

func TestHandleEvent_DispatchesVerifiedTypedEvent(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, states := newTestDispatcher(t, source)

	var got *ChannelFollowed
	if _, err := core.On(source.events, EventChannelFollowed, func(_ context.Context, event *ChannelFollowed) {
		got = event
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	outcome := dispatcher.HandleEvent(context.Background(), key.sign(t, followEnvelope("m-1")))
	if outcome.State != StateDispatched || outcome.Err != nil {
		t.Fatalf("expected dispatched, got %q %v", outcome.State, outcome.Err)
	}
	if outcome.Delivered != 1 {
		t.Fatalf("expected one subscriber delivery, got %d", outcome.Delivered)
	}
	if got == nil || got.Follower.Username != "fan" || got.Broadcaster.ChannelSlug != "streamer" {
		t.Fatalf("unexpected decoded event %+v", got)
	}
	if got.MessageID != "m-1" || got.Type != EventChannelFollowed || got.SubscriptionID != "sub-1" {
		t.Fatalf("expected delivery metadata on event, got %+v", got.EventMeta)
	}
	want := []State{StateReceived, StateVerifying, StateVerified, StateDispatched}
	if !reflect.DeepEqual(*states, want) {
		t.Fatalf("expected states %v, got %v", want, *states)
	}
	if source.metrics.count(MetricWebhookDispatchedTotal) != 1 {
		t.Fatalf("expected dispatched metric")
	}
}

func TestHandleEvent_RejectedNeverReachesSubscribers(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, states := newTestDispatcher(t, source)

	called := 0
	if _, err := source.events.Subscribe(core.EventWildcard, func(context.Context, core.Event) { called++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	env := key.sign(t, followEnvelope("m-1"))
	env.Body = []byte(`{"broadcaster":{},"follower":{"username":"someone-else"}}`)
	outcome := dispatcher.HandleEvent(context.Background(), env)
	if outcome.State != StateRejected || !errors.Is(outcome.Err, core.ErrVerificationFailed) {
		t.Fatalf("expected signature rejection, got %q %v", outcome.State, outcome.Err)
	}
	if called != 0 {
		t.Fatalf("expected no subscriber calls, got %d", called)
	}
	want := []State{StateReceived, StateVerifying, StateRejected}
	if !reflect.DeepEqual(*states, want) {
		t.Fatalf("expected states %v, got %v", want, *states)
	}
	if source.metrics.count(MetricWebhookRejectedTotal) != 1 {
		t.Fatalf("expected rejected metric")
	}
}

func TestHandleEvent_RejectsWhenKeyNotLoaded(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource("")
	source.loadable = key.pem
	dispatcher, _ := newTestDispatcher(t, source)

	outcome := dispatcher.HandleEvent(context.Background(), key.sign(t, followEnvelope("m-1")))
	if outcome.State != StateRejected || !errors.Is(outcome.Err, core.ErrPublicKeyUnavailable) {
		t.Fatalf("expected key unavailable rejection, got %q %v", outcome.State, outcome.Err)
	}
	if source.loadCalls != 0 {
		t.Fatalf("expected no key fetch by default, got %d", source.loadCalls)
	}
}

func TestHandleEvent_LoadsKeyOnMissWhenConfigured(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource("")
	source.loadable = key.pem
	source.config.Webhooks.LoadKeyOnMiss = true
	dispatcher, _ := newTestDispatcher(t, source)

	outcome := dispatcher.HandleEvent(context.Background(), key.sign(t, followEnvelope("m-1")))
	if outcome.State != StateDispatched {
		t.Fatalf("expected dispatched after loading key, got %q %v", outcome.State, outcome.Err)
	}
	if source.loadCalls != 1 {
		t.Fatalf("expected one key load, got %d", source.loadCalls)
	}
}

func TestHandleEvent_UnknownTypeBecomesGenericEvent(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, _ := newTestDispatcher(t, source)

	var got *GenericEvent
	if _, err := core.On(source.events, "channel.reward.redeemed", func(_ context.Context, event *GenericEvent) {
		got = event
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	env := followEnvelope("m-1")
	env.EventType = "channel.reward.redeemed"
	env.Body = []byte(`{"reward":{"title":"hydrate"}}`)
	outcome := dispatcher.HandleEvent(context.Background(), key.sign(t, env))
	if outcome.State != StateDispatched {
		t.Fatalf("expected dispatched, got %q %v", outcome.State, outcome.Err)
	}
	if got == nil || string(got.Data) != `{"reward":{"title":"hydrate"}}` || got.Version != "1" {
		t.Fatalf("unexpected generic event %+v", got)
	}
}

func TestHandleEvent_RejectsReservedEventNames(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, _ := newTestDispatcher(t, source)

	var reached int
	if _, err := source.events.Subscribe(core.EventWildcard, func(context.Context, core.Event) {
		reached++
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for _, name := range []string{core.EventWildcard, core.EventTokenSet, core.EventTokenRefreshed, core.EventPublicKeyLoaded} {
		env := followEnvelope("m-" + name)
		env.EventType = name
		env.Body = []byte(`{}`)
		outcome := dispatcher.HandleEvent(context.Background(), key.sign(t, env))
		if outcome.State != StateRejected {
			t.Fatalf("expected %q rejected, got %q", name, outcome.State)
		}
		if mapped := core.MapError(outcome.Err); mapped == nil || mapped.TextCode != core.KickErrorBadInput {
			t.Fatalf("expected bad input mapping for %q, got %+v", name, mapped)
		}
	}
	if reached != 0 {
		t.Fatalf("expected no subscriber to see reserved deliveries, got %d", reached)
	}
}

func TestHandleEvent_SubscriberHandsNestedDeliveryToGoroutine(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, _ := newTestDispatcher(t, source)

	innerEnv := key.sign(t, followEnvelope("inner"))
	nested := make(chan Outcome, 1)
	if _, err := core.On(source.events, EventChannelFollowed, func(_ context.Context, event *ChannelFollowed) {
		if event.MessageID != "outer" {
			return
		}
		go func() {
			nested <- dispatcher.HandleEvent(context.Background(), innerEnv)
		}()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	outer := dispatcher.HandleEvent(context.Background(), key.sign(t, followEnvelope("outer")))
	if outer.State != StateDispatched {
		t.Fatalf("expected outer dispatched, got %q %v", outer.State, outer.Err)
	}
	select {
	case inner := <-nested:
		if inner.State != StateDispatched || inner.MessageID != "inner" {
			t.Fatalf("expected inner dispatched, got %+v", inner)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("nested delivery did not complete")
	}
}

func TestHandleEvent_RejectsMalformedKnownPayload(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, _ := newTestDispatcher(t, source)

	env := followEnvelope("m-1")
	env.Body = []byte(`{"broadcaster":`)
	outcome := dispatcher.HandleEvent(context.Background(), key.sign(t, env))
	if outcome.State != StateRejected {
		t.Fatalf("expected malformed payload rejected, got %q", outcome.State)
	}
	if mapped := core.MapError(outcome.Err); mapped == nil || mapped.TextCode != core.KickErrorBadInput {
		t.Fatalf("expected bad input mapping, got %+v", mapped)
	}
}

func TestHandleEvent_DefaultPassesDuplicatesThrough(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, _ := newTestDispatcher(t, source)

	env := key.sign(t, followEnvelope("m-1"))
	for i := 0; i < 2; i++ {
		if outcome := dispatcher.HandleEvent(context.Background(), env); outcome.State != StateDispatched {
			t.Fatalf("delivery %d: expected dispatched, got %q", i, outcome.State)
		}
	}
}

func TestHandleEvent_LedgerSuppressesDuplicates(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, _ := newTestDispatcher(t, source, WithLedger(NewMemoryDeliveryLedger(time.Minute)))

	delivered := 0
	if _, err := source.events.Subscribe(EventChannelFollowed, func(context.Context, core.Event) { delivered++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	env := key.sign(t, followEnvelope("m-1"))
	first := dispatcher.HandleEvent(context.Background(), env)
	second := dispatcher.HandleEvent(context.Background(), env)
	if first.State != StateDispatched || second.State != StateDuplicate {
		t.Fatalf("expected dispatched then duplicate, got %q then %q", first.State, second.State)
	}
	if delivered != 1 {
		t.Fatalf("expected a single delivery, got %d", delivered)
	}
	if source.metrics.count(MetricWebhookDuplicateTotal) != 1 {
		t.Fatalf("expected duplicate metric")
	}
}

type failingLedger struct{}

func (failingLedger) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("ledger offline")
}

func TestHandleEvent_LedgerErrorStillDispatches(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, _ := newTestDispatcher(t, source, WithLedger(failingLedger{}))

	outcome := dispatcher.HandleEvent(context.Background(), key.sign(t, followEnvelope("m-1")))
	if outcome.State != StateDispatched {
		t.Fatalf("expected dispatch despite ledger failure, got %q", outcome.State)
	}
}

type completingLedger struct {
	*MemoryDeliveryLedger
	completed []string
}

func (l *completingLedger) Complete(_ context.Context, messageID string) error {
	l.completed = append(l.completed, messageID)
	return nil
}

func TestHandleEvent_CompletesClaimAfterDispatch(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	ledger := &completingLedger{MemoryDeliveryLedger: NewMemoryDeliveryLedger(time.Minute)}
	dispatcher, _ := newTestDispatcher(t, source, WithLedger(ledger))

	dispatcher.HandleEvent(context.Background(), key.sign(t, followEnvelope("m-1")))
	if !reflect.DeepEqual(ledger.completed, []string{"m-1"}) {
		t.Fatalf("expected claim completion, got %v", ledger.completed)
	}
}

func TestHandleEvent_SerializesDeliveries(t *testing.T) {
	key := newSigningKey(t)
	source := newFakeSource(key.pem)
	dispatcher, _ := newTestDispatcher(t, source)

	var mu sync.Mutex
	active, maxActive := 0, 0
	if _, err := source.events.Subscribe(EventChannelFollowed, func(context.Context, core.Event) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	env := key.sign(t, followEnvelope("m-1"))
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.HandleEvent(context.Background(), env)
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Fatalf("expected deliveries handled one at a time, saw %d concurrent", maxActive)
	}
}

func TestHandleEvent_DecodesEveryKnownType(t *testing.T) {
	bodies := map[string]string{
		EventChatMessageSent:            `{"message_id":"c1","broadcaster":{"user_id":1},"sender":{"user_id":2,"identity":{"username_color":"#fff","badges":[{"text":"Moderator","type":"moderator"}]}},"content":"hi [emote:1:wave]","emotes":[{"emote_id":"1","positions":[{"s":3,"e":17}]}]}`,
		EventChannelFollowed:            `{"broadcaster":{"user_id":1},"follower":{"user_id":2}}`,
		EventChannelSubscriptionRenewal: `{"broadcaster":{"user_id":1},"subscriber":{"user_id":2},"duration":3,"created_at":"2026-03-14T12:00:00Z","expires_at":"2026-04-14T12:00:00Z"}`,
		EventChannelSubscriptionNew:     `{"broadcaster":{"user_id":1},"subscriber":{"user_id":2},"duration":1,"created_at":"2026-03-14T12:00:00Z"}`,
		EventChannelSubscriptionGifts:   `{"broadcaster":{"user_id":1},"gifter":{"is_anonymous":true},"giftees":[{"user_id":3},{"user_id":4}],"created_at":"2026-03-14T12:00:00Z"}`,
		EventLivestreamStatusUpdated:    `{"broadcaster":{"user_id":1},"is_live":true,"title":"live","started_at":"2026-03-14T12:00:00Z"}`,
		EventLivestreamMetadataUpdated:  `{"broadcaster":{"user_id":1},"metadata":{"title":"t","language":"en","has_mature_content":false,"category":{"id":5,"name":"Just Chatting"}}}`,
		EventModerationBanned:           `{"broadcaster":{"user_id":1},"moderator":{"user_id":2},"banned_user":{"user_id":3},"metadata":{"reason":"spam","created_at":"2026-03-14T12:00:00Z"}}`,
		EventKicksGifted:                `{"broadcaster":{"user_id":1},"sender":{"user_id":2},"gift":{"amount":100,"name":"Rage Quit","type":"LEVEL_UP","tier":"MID"},"created_at":"2026-03-14T12:00:00Z"}`,
	}
	if len(bodies) != len(KnownEventTypes()) {
		t.Fatalf("expected a fixture per known type")
	}
	for _, eventType := range KnownEventTypes() {
		env := Envelope{MessageID: "m", EventType: eventType, Body: []byte(bodies[eventType])}
		event, err := DecodeEvent(env)
		if err != nil {
			t.Fatalf("%s: decode: %v", eventType, err)
		}
		if _, generic := event.(*GenericEvent); generic {
			t.Fatalf("%s: expected typed payload", eventType)
		}
	}

	event, err := DecodeEvent(Envelope{EventType: EventChatMessageSent, Body: []byte(bodies[EventChatMessageSent])})
	if err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	chat := event.(*ChatMessageSent)
	if chat.Sender.Identity == nil || chat.Sender.Identity.Badges[0].Type != "moderator" || chat.Emotes[0].Positions[0].End != 17 {
		t.Fatalf("unexpected chat payload %+v", chat)
	}
}
