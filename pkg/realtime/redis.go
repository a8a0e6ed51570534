package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	wireKindBroadcast = "broadcast"
	wireKindPresence  = "presence"
)

// RedisHub spreads topics across processes: broadcast rides PUBLISH/SUBSCRIBE
// and presence lives in one hash per topic whose entries expire by timestamp.
type RedisHub struct {
	rdb         *redis.Client
	prefix      string
	presenceTTL time.Duration
	receiveOwn  bool
	logger      *zap.Logger
	now         func() time.Time
}

// RedisHubConfig configures a RedisHub.
type RedisHubConfig struct {
	Prefix      string
	PresenceTTL time.Duration
	ReceiveOwn  bool
	Logger      *zap.Logger
}

// NewRedisHub constructs a Redis-backed client.
func NewRedisHub(rdb *redis.Client, cfg RedisHubConfig) *RedisHub {
	if cfg.Prefix == "" {
		cfg.Prefix = "rt"
	}
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &RedisHub{
		rdb:         rdb,
		prefix:      cfg.Prefix,
		presenceTTL: cfg.PresenceTTL,
		receiveOwn:  cfg.ReceiveOwn,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Channel returns a fresh, unsubscribed channel for topic.
func (h *RedisHub) Channel(topic string) Channel {
	return &redisChannel{hub: h, topic: topic, ref: uuid.NewString()}
}

// Close releases the Redis client.
func (h *RedisHub) Close() error {
	return h.rdb.Close()
}

func (h *RedisHub) broadcastKey(topic string) string {
	return fmt.Sprintf("%s:%s:bcast", h.prefix, topic)
}

func (h *RedisHub) presenceKey(topic string) string {
	return fmt.Sprintf("%s:%s:presence", h.prefix, topic)
}

type wireMessage struct {
	Kind    string          `json:"kind"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Sender  string          `json:"sender,omitempty"`
}

type presenceEntry struct {
	Meta     json.RawMessage `json:"meta"`
	SeenUnix int64           `json:"seen"`
}

func presenceField(key, ref string) string {
	return key + "|" + ref
}

// decodePresence builds a snapshot from the raw hash, reporting fields whose
// heartbeat is older than ttl so callers can prune them.
func decodePresence(raw map[string]string, now time.Time, ttl time.Duration) (PresenceState, []string) {
	state := make(PresenceState)
	var stale []string
	for field, value := range raw {
		idx := strings.LastIndex(field, "|")
		if idx <= 0 {
			stale = append(stale, field)
			continue
		}
		var entry presenceEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			stale = append(stale, field)
			continue
		}
		if now.Sub(time.Unix(entry.SeenUnix, 0)) > ttl {
			stale = append(stale, field)
			continue
		}
		key, ref := field[:idx], field[idx+1:]
		state[key] = append(state[key], Presence{Ref: ref, Meta: entry.Meta})
	}
	for key := range state {
		list := state[key]
		sort.Slice(list, func(i, j int) bool { return list[i].Ref < list[j].Ref })
	}
	sort.Strings(stale)
	return state, stale
}

type redisChannel struct {
	hub   *RedisHub
	topic string
	ref   string

	mu         sync.Mutex
	pubsub     *redis.PubSub
	handlers   Handlers
	trackedKey string
	trackedRaw json.RawMessage
	state      PresenceState
	cancel     context.CancelFunc
	once       sync.Once
}

func (c *redisChannel) Ref() string { return c.ref }

func (c *redisChannel) Subscribe(ctx context.Context, handlers Handlers, onStatus func(Status, error)) error {
	c.mu.Lock()
	if c.pubsub != nil {
		c.mu.Unlock()
		return nil
	}
	c.handlers = handlers
	c.mu.Unlock()

	pubsub := c.hub.rdb.Subscribe(ctx, c.hub.broadcastKey(c.topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		if onStatus != nil {
			onStatus(StatusChannelError, err)
		}
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.pubsub = pubsub
	c.cancel = cancel
	c.mu.Unlock()

	go c.listen(loopCtx, pubsub, onStatus)

	if onStatus != nil {
		onStatus(StatusSubscribed, nil)
	}
	c.refreshPresence(ctx)
	return nil
}

func (c *redisChannel) listen(ctx context.Context, pubsub *redis.PubSub, onStatus func(Status, error)) {
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			if onStatus != nil {
				onStatus(StatusClosed, nil)
			}
			return
		case msg, ok := <-messages:
			if !ok {
				if onStatus != nil {
					onStatus(StatusClosed, nil)
				}
				return
			}
			var wire wireMessage
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				c.hub.logger.Warn("realtime message undecodable", zap.String("topic", c.topic), zap.Error(err))
				continue
			}
			switch wire.Kind {
			case wireKindBroadcast:
				if wire.Sender == c.ref && !c.hub.receiveOwn {
					continue
				}
				c.mu.Lock()
				handler := c.handlers.OnBroadcast
				c.mu.Unlock()
				if handler != nil {
					handler(Envelope{Event: wire.Event, Payload: wire.Payload, Sender: wire.Sender})
				}
			case wireKindPresence:
				c.refreshPresence(ctx)
			}
		}
	}
}

// refreshPresence reads the hash and hands a full snapshot to the handler.
func (c *redisChannel) refreshPresence(ctx context.Context) {
	raw, err := c.hub.rdb.HGetAll(ctx, c.hub.presenceKey(c.topic)).Result()
	if err != nil {
		c.hub.logger.Warn("presence read failed", zap.String("topic", c.topic), zap.Error(err))
		return
	}
	state, stale := decodePresence(raw, c.hub.now(), c.hub.presenceTTL)
	if len(stale) > 0 {
		if err := c.hub.rdb.HDel(ctx, c.hub.presenceKey(c.topic), stale...).Err(); err != nil {
			c.hub.logger.Debug("presence prune failed", zap.String("topic", c.topic), zap.Error(err))
		}
	}
	c.mu.Lock()
	c.state = state
	handler := c.handlers.OnPresenceSync
	c.mu.Unlock()
	if handler != nil {
		handler(copyState(state))
	}
}

func (c *redisChannel) subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pubsub != nil
}

func (c *redisChannel) publish(ctx context.Context, wire wireMessage) error {
	body, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	return c.hub.rdb.Publish(ctx, c.hub.broadcastKey(c.topic), body).Err()
}

func (c *redisChannel) Send(ctx context.Context, event string, payload interface{}) error {
	if !c.subscribed() {
		return ErrNotSubscribed
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.publish(ctx, wireMessage{Kind: wireKindBroadcast, Event: event, Payload: raw, Sender: c.ref})
}

func (c *redisChannel) writePresence(ctx context.Context, key string, raw json.RawMessage) error {
	entry, err := json.Marshal(presenceEntry{Meta: raw, SeenUnix: c.hub.now().Unix()})
	if err != nil {
		return err
	}
	pipe := c.hub.rdb.TxPipeline()
	pipe.HSet(ctx, c.hub.presenceKey(c.topic), presenceField(key, c.ref), entry)
	pipe.Expire(ctx, c.hub.presenceKey(c.topic), 2*c.hub.presenceTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *redisChannel) Track(ctx context.Context, key string, meta interface{}) error {
	if !c.subscribed() {
		return ErrNotSubscribed
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	c.mu.Lock()
	previous := c.trackedKey
	c.trackedKey = key
	c.trackedRaw = raw
	c.mu.Unlock()
	if previous != "" && previous != key {
		_ = c.hub.rdb.HDel(ctx, c.hub.presenceKey(c.topic), presenceField(previous, c.ref)).Err()
	}
	if err := c.writePresence(ctx, key, raw); err != nil {
		return fmt.Errorf("track presence: %w", err)
	}
	return c.publish(ctx, wireMessage{Kind: wireKindPresence})
}

func (c *redisChannel) Untrack(ctx context.Context) error {
	c.mu.Lock()
	key := c.trackedKey
	c.trackedKey = ""
	c.trackedRaw = nil
	c.mu.Unlock()
	if key == "" {
		return nil
	}
	if err := c.hub.rdb.HDel(ctx, c.hub.presenceKey(c.topic), presenceField(key, c.ref)).Err(); err != nil {
		return fmt.Errorf("untrack presence: %w", err)
	}
	return c.publish(ctx, wireMessage{Kind: wireKindPresence})
}

// Resync refreshes this connection's heartbeat and asks every peer to re-read
// the full presence state.
func (c *redisChannel) Resync(ctx context.Context) error {
	if !c.subscribed() {
		return ErrNotSubscribed
	}
	c.mu.Lock()
	key, raw := c.trackedKey, c.trackedRaw
	c.mu.Unlock()
	if key != "" {
		if err := c.writePresence(ctx, key, raw); err != nil {
			return fmt.Errorf("refresh presence: %w", err)
		}
	}
	return c.publish(ctx, wireMessage{Kind: wireKindPresence})
}

func (c *redisChannel) PresenceState() PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

func (c *redisChannel) Unsubscribe() error {
	var err error
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if untrackErr := c.Untrack(ctx); untrackErr != nil {
			c.hub.logger.Warn("untrack on unsubscribe failed", zap.String("topic", c.topic), zap.Error(untrackErr))
		}
		c.mu.Lock()
		pubsub, stop := c.pubsub, c.cancel
		c.pubsub = nil
		c.mu.Unlock()
		if stop != nil {
			stop()
		}
		if pubsub != nil {
			err = pubsub.Close()
		}
	})
	return err
}
