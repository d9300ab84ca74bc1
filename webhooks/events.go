package webhooks

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-kick/core"
)

const (
	EventChatMessageSent            = "chat.message.sent"
	EventChannelFollowed            = "channel.followed"
	EventChannelSubscriptionRenewal = "channel.subscription.renewal"
	EventChannelSubscriptionGifts   = "channel.subscription.gifts"
	EventChannelSubscriptionNew     = "channel.subscription.new"
	EventLivestreamStatusUpdated    = "livestream.status.updated"
	EventLivestreamMetadataUpdated  = "livestream.metadata.updated"
	EventModerationBanned           = "moderation.banned"
	EventKicksGifted                = "kicks.gifted"
)

// EventMeta carries the delivery headers alongside a decoded payload.
type EventMeta struct {
	MessageID      string `json:"-"`
	SubscriptionID string `json:"-"`
	Timestamp      string `json:"-"`
	Type           string `json:"-"`
	Version        string `json:"-"`
}

func (m *EventMeta) setMeta(meta EventMeta) {
	*m = meta
}

// Metadata returns the delivery headers of a decoded event.
func (m EventMeta) Metadata() EventMeta {
	return m
}

type User struct {
	IsAnonymous    bool      `json:"is_anonymous"`
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username"`
	IsVerified     bool      `json:"is_verified"`
	ProfilePicture string    `json:"profile_picture"`
	ChannelSlug    string    `json:"channel_slug"`
	Identity       *Identity `json:"identity,omitempty"`
}

type Identity struct {
	UsernameColor string  `json:"username_color"`
	Badges        []Badge `json:"badges"`
}

type Badge struct {
	Text  string `json:"text"`
	Type  string `json:"type"`
	Count int    `json:"count,omitempty"`
}

type Emote struct {
	EmoteID   string          `json:"emote_id"`
	Positions []EmotePosition `json:"positions"`
}

type EmotePosition struct {
	Start int `json:"s"`
	End   int `json:"e"`
}

type ChatMessageSent struct {
	EventMeta
	MessageID   string  `json:"message_id"`
	RepliesTo   *Reply  `json:"replies_to,omitempty"`
	Broadcaster User    `json:"broadcaster"`
	Sender      User    `json:"sender"`
	Content     string  `json:"content"`
	Emotes      []Emote `json:"emotes"`
}

type Reply struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	Sender    User   `json:"sender"`
}

type ChannelFollowed struct {
	EventMeta
	Broadcaster User `json:"broadcaster"`
	Follower    User `json:"follower"`
}

// ChannelSubscription is the payload of both new and renewed subscriptions.
type ChannelSubscription struct {
	EventMeta
	Broadcaster User       `json:"broadcaster"`
	Subscriber  User       `json:"subscriber"`
	Duration    int        `json:"duration"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type ChannelSubscriptionGifts struct {
	EventMeta
	Broadcaster User       `json:"broadcaster"`
	Gifter      User       `json:"gifter"`
	Giftees     []User     `json:"giftees"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type LivestreamStatusUpdated struct {
	EventMeta
	Broadcaster User       `json:"broadcaster"`
	IsLive      bool       `json:"is_live"`
	Title       string     `json:"title"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

type LivestreamMetadata struct {
	Title            string   `json:"title"`
	Language         string   `json:"language"`
	HasMatureContent bool     `json:"has_mature_content"`
	Category         Category `json:"category"`
}

type Category struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail"`
}

type LivestreamMetadataUpdated struct {
	EventMeta
	Broadcaster User               `json:"broadcaster"`
	Metadata    LivestreamMetadata `json:"metadata"`
}

type BanMetadata struct {
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ModerationBanned covers bans and timeouts; timeouts carry ExpiresAt.
type ModerationBanned struct {
	EventMeta
	Broadcaster User        `json:"broadcaster"`
	Moderator   User        `json:"moderator"`
	BannedUser  User        `json:"banned_user"`
	Metadata    BanMetadata `json:"metadata"`
}

type Gift struct {
	Amount            int    `json:"amount"`
	Name              string `json:"name"`
	Type              string `json:"type"`
	Tier              string `json:"tier"`
	Message           string `json:"message"`
	PinnedTimeSeconds int    `json:"pinned_time_seconds,omitempty"`
}

type KicksGifted struct {
	EventMeta
	Broadcaster User      `json:"broadcaster"`
	Sender      User      `json:"sender"`
	Gift        Gift      `json:"gift"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenericEvent holds deliveries whose type has no typed payload.
type GenericEvent struct {
	EventMeta
	Data json.RawMessage
}

type metaSetter interface {
	setMeta(EventMeta)
}

func decodeInto[T any, PT interface {
	*T
	metaSetter
}](body []byte, meta EventMeta) (any, error) {
	var event T
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	PT(&event).setMeta(meta)
	return &event, nil
}

var eventDecoders = map[string]func([]byte, EventMeta) (any, error){
	EventChatMessageSent:            decodeInto[ChatMessageSent],
	EventChannelFollowed:            decodeInto[ChannelFollowed],
	EventChannelSubscriptionRenewal: decodeInto[ChannelSubscription],
	EventChannelSubscriptionNew:     decodeInto[ChannelSubscription],
	EventChannelSubscriptionGifts:   decodeInto[ChannelSubscriptionGifts],
	EventLivestreamStatusUpdated:    decodeInto[LivestreamStatusUpdated],
	EventLivestreamMetadataUpdated:  decodeInto[LivestreamMetadataUpdated],
	EventModerationBanned:           decodeInto[ModerationBanned],
	EventKicksGifted:                decodeInto[KicksGifted],
}

// KnownEventTypes lists the event types decoded into typed payloads.
func KnownEventTypes() []string {
	return []string{
		EventChatMessageSent,
		EventChannelFollowed,
		EventChannelSubscriptionRenewal,
		EventChannelSubscriptionGifts,
		EventChannelSubscriptionNew,
		EventLivestreamStatusUpdated,
		EventLivestreamMetadataUpdated,
		EventModerationBanned,
		EventKicksGifted,
	}
}

// DecodeEvent decodes a verified body into its typed payload. Unknown types
// yield *GenericEvent with the raw body. Session lifecycle names and the
// wildcard are rejected so a delivery never reaches lifecycle subscribers.
func DecodeEvent(env Envelope) (any, error) {
	if core.IsReservedEvent(env.EventType) {
		return nil, reservedEventError(env)
	}
	meta := env.Meta()
	decode, ok := eventDecoders[env.EventType]
	if !ok {
		if len(env.Body) > 0 && !json.Valid(env.Body) {
			return nil, decodeError(nil, env)
		}
		return &GenericEvent{EventMeta: meta, Data: json.RawMessage(append([]byte(nil), env.Body...))}, nil
	}
	event, err := decode(env.Body, meta)
	if err != nil {
		return nil, decodeError(err, env)
	}
	return event, nil
}
