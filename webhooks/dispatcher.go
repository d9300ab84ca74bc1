package webhooks

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

type State string

const (
	StateReceived   State = "received"
	StateVerifying  State = "verifying"
	StateVerified   State = "verified"
	StateDispatched State = "dispatched"
	StateRejected   State = "rejected"
	StateDuplicate  State = "duplicate"
)

const (
	MetricWebhookDispatchedTotal = "kick.webhook.dispatched.total"
	MetricWebhookRejectedTotal   = "kick.webhook.rejected.total"
	MetricWebhookDuplicateTotal  = "kick.webhook.duplicate.total"
)

// Outcome is the terminal state of one delivery. Delivered counts the
// subscribers that received the event.
type Outcome struct {
	State     State
	EventType string
	MessageID string
	Event     any
	Delivered int
	Err       error
}

// Source is what the dispatcher needs from a session.
type Source interface {
	core.PublicKeyProvider
	Events() *core.EventBus
	Config() core.Config
	Logger() core.Logger
	MetricsRecorder() core.MetricsRecorder
}

// Dispatcher verifies deliveries and emits them on the source's event bus
// under their event type. Deliveries are handled one at a time.
//
// Subscribers run while the dispatcher holds its turn. A subscriber that calls
// HandleEvent on the same dispatcher blocks forever; hand nested deliveries to
// another goroutine instead.
type Dispatcher struct {
	source        Source
	verifier      *SignatureVerifier
	ledger        DeliveryLedger
	dedupeTTL     time.Duration
	loadKeyOnMiss bool
	logger        core.Logger
	metrics       core.MetricsRecorder
	observer      func(State, Envelope)
	now           func() time.Time

	turn chan struct{}
}

type DispatcherOption func(*Dispatcher)

func WithLedger(ledger DeliveryLedger) DispatcherOption {
	return func(d *Dispatcher) {
		d.ledger = ledger
	}
}

func WithVerifier(verifier *SignatureVerifier) DispatcherOption {
	return func(d *Dispatcher) {
		d.verifier = verifier
	}
}

func WithLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = recorder
	}
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithStateObserver registers fn to see every state transition.
func WithStateObserver(fn func(State, Envelope)) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = fn
	}
}

func NewDispatcher(source Source, opts ...DispatcherOption) (*Dispatcher, error) {
	if source == nil || source.Events() == nil {
		return nil, core.NewError(nil, "webhooks: dispatcher requires a session", goerrors.CategoryBadInput, core.KickErrorBadInput, nil)
	}
	cfg := source.Config()
	d := &Dispatcher{
		source:        source,
		dedupeTTL:     cfg.Webhooks.DedupeTTL,
		loadKeyOnMiss: cfg.Webhooks.LoadKeyOnMiss,
		logger:        source.Logger(),
		metrics:       source.MetricsRecorder(),
		turn:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.now == nil {
		d.now = func() time.Time { return time.Now().UTC() }
	}
	if d.verifier == nil {
		d.verifier = &SignatureVerifier{Keys: source, MaxSkew: cfg.Webhooks.MaxSkew, Now: d.now}
	}
	if d.metrics == nil {
		d.metrics = core.NopMetricsRecorder{}
	}
	return d, nil
}

// HandleEvent runs one delivery to a terminal state.
func (d *Dispatcher) HandleEvent(ctx context.Context, env Envelope) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.turn <- struct{}{}:
	case <-ctx.Done():
		return d.reject(ctx, env, ctx.Err())
	}
	defer func() { <-d.turn }()

	d.observe(StateReceived, env)
	d.observe(StateVerifying, env)
	if d.loadKeyOnMiss {
		if _, ok := d.source.CachedPublicKey(); !ok {
			if err := d.verifier.EnsureKeyLoaded(ctx); err != nil {
				return d.reject(ctx, env, err)
			}
		}
	}
	if err := d.verifier.Verify(env); err != nil {
		return d.reject(ctx, env, err)
	}
	d.observe(StateVerified, env)

	event, err := DecodeEvent(env)
	if err != nil {
		return d.reject(ctx, env, err)
	}

	if d.ledger != nil && env.MessageID != "" {
		claimed, err := d.ledger.Claim(ctx, env.MessageID, d.dedupeTTL)
		switch {
		case err != nil:
			core.LogWithLevel(ctx, d.logger, "warn", "webhook ledger claim failed", withError(env.fields(), err))
		case !claimed:
			d.observe(StateDuplicate, env)
			d.count(ctx, MetricWebhookDuplicateTotal, env)
			core.LogWithLevel(ctx, d.logger, "debug", "webhook duplicate skipped", env.fields())
			return Outcome{State: StateDuplicate, EventType: env.EventType, MessageID: env.MessageID}
		}
	}

	delivered := d.source.Events().Emit(ctx, env.EventType, event)
	if completer, ok := d.ledger.(DeliveryCompleter); ok && env.MessageID != "" {
		if err := completer.Complete(ctx, env.MessageID); err != nil {
			core.LogWithLevel(ctx, d.logger, "warn", "webhook ledger complete failed", withError(env.fields(), err))
		}
	}
	d.observe(StateDispatched, env)
	d.count(ctx, MetricWebhookDispatchedTotal, env)
	return Outcome{
		State:     StateDispatched,
		EventType: env.EventType,
		MessageID: env.MessageID,
		Event:     event,
		Delivered: delivered,
	}
}

func (d *Dispatcher) reject(ctx context.Context, env Envelope, err error) Outcome {
	d.observe(StateRejected, env)
	d.count(ctx, MetricWebhookRejectedTotal, env)
	fields := withError(env.fields(), err)
	fields["reason"] = rejectReason(err)
	core.LogWithLevel(ctx, d.logger, "warn", "webhook rejected", fields)
	return Outcome{State: StateRejected, EventType: env.EventType, MessageID: env.MessageID, Err: err}
}

func (d *Dispatcher) observe(state State, env Envelope) {
	if d.observer != nil {
		d.observer(state, env)
	}
}

func (d *Dispatcher) count(ctx context.Context, name string, env Envelope) {
	d.metrics.IncCounter(ctx, name, 1, map[string]string{"event_type": env.EventType})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, core.ErrPublicKeyUnavailable):
		return "public_key_unavailable"
	case errors.Is(err, core.ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, core.ErrVerificationFailed):
		return "signature"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "payload"
	}
}

func withError(fields map[string]any, err error) map[string]any {
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}
