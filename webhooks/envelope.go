package webhooks

import (
	"net/http"
	"strings"
)

const (
	HeaderMessageID        = "Kick-Event-Message-Id"
	HeaderSubscriptionID   = "Kick-Event-Subscription-Id"
	HeaderSignature        = "Kick-Event-Signature"
	HeaderMessageTimestamp = "Kick-Event-Message-Timestamp"
	HeaderEventType        = "Kick-Event-Type"
	HeaderEventVersion     = "Kick-Event-Version"
)

// Envelope is one inbound delivery: the raw body and Kick's event headers.
type Envelope struct {
	MessageID      string
	SubscriptionID string
	Signature      string
	Timestamp      string
	EventType      string
	EventVersion   string
	Body           []byte
}

// EnvelopeFromHeaders reads the Kick event headers from headers.
func EnvelopeFromHeaders(headers http.Header, body []byte) Envelope {
	return Envelope{
		MessageID:      strings.TrimSpace(headers.Get(HeaderMessageID)),
		SubscriptionID: strings.TrimSpace(headers.Get(HeaderSubscriptionID)),
		Signature:      strings.TrimSpace(headers.Get(HeaderSignature)),
		Timestamp:      strings.TrimSpace(headers.Get(HeaderMessageTimestamp)),
		EventType:      strings.TrimSpace(headers.Get(HeaderEventType)),
		EventVersion:   strings.TrimSpace(headers.Get(HeaderEventVersion)),
		Body:           body,
	}
}

// EnvelopeFromMap is EnvelopeFromHeaders for flattened header maps with
// arbitrary key case.
func EnvelopeFromMap(headers map[string]string, body []byte) Envelope {
	canonical := http.Header{}
	for key, value := range headers {
		canonical.Set(key, value)
	}
	return EnvelopeFromHeaders(canonical, body)
}

// SigningInput is the byte sequence Kick signs: message id, timestamp and
// raw body joined by dots.
func (e Envelope) SigningInput() string {
	return e.MessageID + "." + e.Timestamp + "." + string(e.Body)
}

func (e Envelope) Meta() EventMeta {
	return EventMeta{
		MessageID:      e.MessageID,
		SubscriptionID: e.SubscriptionID,
		Timestamp:      e.Timestamp,
		Type:           e.EventType,
		Version:        e.EventVersion,
	}
}

func (e Envelope) fields() map[string]any {
	return map[string]any{
		"message_id":      e.MessageID,
		"subscription_id": e.SubscriptionID,
		"event_type":      e.EventType,
		"event_version":   e.EventVersion,
	}
}
