// Package realtime provides topic-scoped channels with broadcast, presence
// tracking and a subscribe/unsubscribe lifecycle. Delivery is best-effort:
// messages are FIFO per sender and may be dropped for slow subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// Status reports the lifecycle of a channel subscription.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusClosed       Status = "CLOSED"
)

// ErrNotSubscribed is returned by operations that require an active subscription.
var ErrNotSubscribed = errors.New("realtime: channel not subscribed")

// Envelope is a broadcast message as seen by subscribers.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Sender  string          `json:"sender,omitempty"`
}

// Presence is one tracked connection under a presence key.
type Presence struct {
	Ref  string          `json:"ref"`
	Meta json.RawMessage `json:"meta"`
}

// PresenceState is a full snapshot: presence key to its tracked connections.
type PresenceState map[string][]Presence

// Keys returns the number of distinct presence keys.
func (s PresenceState) Keys() int {
	return len(s)
}

// Handlers receive channel traffic. Either may be nil.
type Handlers struct {
	OnBroadcast    func(Envelope)
	OnPresenceSync func(PresenceState)
}

// Channel is one connection's view of a topic.
type Channel interface {
	Ref() string
	Subscribe(ctx context.Context, handlers Handlers, onStatus func(Status, error)) error
	Send(ctx context.Context, event string, payload interface{}) error
	Track(ctx context.Context, key string, meta interface{}) error
	Untrack(ctx context.Context) error
	Resync(ctx context.Context) error
	PresenceState() PresenceState
	Unsubscribe() error
}

// Client hands out channels for topics.
type Client interface {
	Channel(topic string) Channel
	Close() error
}

func copyState(state PresenceState) PresenceState {
	out := make(PresenceState, len(state))
	for key, list := range state {
		cp := make([]Presence, len(list))
		copy(cp, list)
		out[key] = cp
	}
	return out
}
