package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const mailboxSize = 256

// MemoryHub is an in-process Client. All channels of one hub share topics.
type MemoryHub struct {
	mu         sync.Mutex
	topics     map[string]*memoryTopic
	receiveOwn bool
	logger     *zap.Logger
}

type memoryTopic struct {
	subs     map[string]*memoryChannel
	presence map[string]map[string]json.RawMessage
}

// NewMemoryHub constructs an in-memory hub.
func NewMemoryHub(receiveOwn bool, logger *zap.Logger) *MemoryHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHub{topics: make(map[string]*memoryTopic), receiveOwn: receiveOwn, logger: logger}
}

// Channel returns a fresh, unsubscribed channel for topic.
func (h *MemoryHub) Channel(topic string) Channel {
	return &memoryChannel{hub: h, topic: topic, ref: uuid.NewString()}
}

// Close is a no-op; channels are torn down individually.
func (h *MemoryHub) Close() error { return nil }

func (h *MemoryHub) topicLocked(name string) *memoryTopic {
	t, ok := h.topics[name]
	if !ok {
		t = &memoryTopic{subs: make(map[string]*memoryChannel), presence: make(map[string]map[string]json.RawMessage)}
		h.topics[name] = t
	}
	return t
}

func (t *memoryTopic) snapshot() PresenceState {
	state := make(PresenceState, len(t.presence))
	for key, refs := range t.presence {
		list := make([]Presence, 0, len(refs))
		for ref, meta := range refs {
			list = append(list, Presence{Ref: ref, Meta: meta})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Ref < list[j].Ref })
		state[key] = list
	}
	return state
}

// syncLocked pushes the topic's full presence snapshot to every subscriber.
func (h *MemoryHub) syncLocked(t *memoryTopic) {
	state := t.snapshot()
	for _, sub := range t.subs {
		sub.deliver(func(handlers Handlers) {
			if handlers.OnPresenceSync != nil {
				handlers.OnPresenceSync(copyState(state))
			}
			sub.setState(state)
		})
	}
}

type memoryChannel struct {
	hub   *MemoryHub
	topic string
	ref   string

	mu         sync.Mutex
	handlers   Handlers
	subscribed bool
	closed     bool
	trackedKey string
	state      PresenceState
	mailbox    chan func(Handlers)
	done       chan struct{}
	once       sync.Once
}

func (c *memoryChannel) Ref() string { return c.ref }

func (c *memoryChannel) Subscribe(ctx context.Context, handlers Handlers, onStatus func(Status, error)) error {
	c.mu.Lock()
	if c.subscribed || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.handlers = handlers
	c.mailbox = make(chan func(Handlers), mailboxSize)
	c.done = make(chan struct{})
	c.subscribed = true
	c.mu.Unlock()

	go c.dispatch()

	c.hub.mu.Lock()
	t := c.hub.topicLocked(c.topic)
	t.subs[c.ref] = c
	state := t.snapshot()
	c.hub.mu.Unlock()

	c.setState(state)
	if onStatus != nil {
		onStatus(StatusSubscribed, nil)
	}
	return nil
}

func (c *memoryChannel) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.mailbox:
			c.mu.Lock()
			handlers := c.handlers
			c.mu.Unlock()
			fn(handlers)
		}
	}
}

// deliver enqueues without blocking the sender; a full mailbox drops the message.
func (c *memoryChannel) deliver(fn func(Handlers)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed || c.closed {
		return
	}
	select {
	case c.mailbox <- fn:
	default:
		c.hub.logger.Warn("realtime mailbox full, dropping message", zap.String("topic", c.topic), zap.String("ref", c.ref))
	}
}

func (c *memoryChannel) setState(state PresenceState) {
	c.mu.Lock()
	c.state = copyState(state)
	c.mu.Unlock()
}

func (c *memoryChannel) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed && !c.closed
}

func (c *memoryChannel) Send(ctx context.Context, event string, payload interface{}) error {
	if !c.active() {
		return ErrNotSubscribed
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{Event: event, Payload: raw, Sender: c.ref}

	c.hub.mu.Lock()
	t := c.hub.topicLocked(c.topic)
	for ref, sub := range t.subs {
		if ref == c.ref && !c.hub.receiveOwn {
			continue
		}
		sub.deliver(func(handlers Handlers) {
			if handlers.OnBroadcast != nil {
				handlers.OnBroadcast(env)
			}
		})
	}
	c.hub.mu.Unlock()
	return nil
}

func (c *memoryChannel) Track(ctx context.Context, key string, meta interface{}) error {
	if !c.active() {
		return ErrNotSubscribed
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	t := c.hub.topicLocked(c.topic)
	c.mu.Lock()
	previous := c.trackedKey
	c.trackedKey = key
	c.mu.Unlock()
	if previous != "" && previous != key {
		removePresenceLocked(t, previous, c.ref)
	}
	refs, ok := t.presence[key]
	if !ok {
		refs = make(map[string]json.RawMessage)
		t.presence[key] = refs
	}
	refs[c.ref] = raw
	c.hub.syncLocked(t)
	return nil
}

func (c *memoryChannel) Untrack(ctx context.Context) error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.mu.Lock()
	key := c.trackedKey
	c.trackedKey = ""
	c.mu.Unlock()
	if key == "" {
		return nil
	}
	t := c.hub.topicLocked(c.topic)
	removePresenceLocked(t, key, c.ref)
	c.hub.syncLocked(t)
	return nil
}

func (c *memoryChannel) Resync(ctx context.Context) error {
	if !c.active() {
		return ErrNotSubscribed
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.hub.syncLocked(c.hub.topicLocked(c.topic))
	return nil
}

func (c *memoryChannel) PresenceState() PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

// Unsubscribe untracks, detaches and stops delivery. Safe to call repeatedly.
func (c *memoryChannel) Unsubscribe() error {
	c.once.Do(func() {
		_ = c.Untrack(context.Background())

		c.hub.mu.Lock()
		if t, ok := c.hub.topics[c.topic]; ok {
			delete(t.subs, c.ref)
			if len(t.subs) == 0 && len(t.presence) == 0 {
				delete(c.hub.topics, c.topic)
			}
		}
		c.hub.mu.Unlock()

		c.mu.Lock()
		wasSubscribed := c.subscribed
		c.closed = true
		c.mu.Unlock()
		if wasSubscribed {
			close(c.done)
		}
	})
	return nil
}

func removePresenceLocked(t *memoryTopic, key, ref string) {
	refs, ok := t.presence[key]
	if !ok {
		return
	}
	delete(refs, ref)
	if len(refs) == 0 {
		delete(t.presence, key)
	}
}
