package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	messages []Envelope
	syncs    []PresenceState
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnBroadcast: func(env Envelope) {
			r.mu.Lock()
			r.messages = append(r.messages, env)
			r.mu.Unlock()
		},
		OnPresenceSync: func(state PresenceState) {
			r.mu.Lock()
			r.syncs = append(r.syncs, state)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recorder) lastKeys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.syncs) == 0 {
		return -1
	}
	return r.syncs[len(r.syncs)-1].Keys()
}

func subscribe(t *testing.T, ch Channel, rec *recorder) {
	t.Helper()
	var status Status
	require.NoError(t, ch.Subscribe(context.Background(), rec.handlers(), func(s Status, err error) {
		status = s
	}))
	require.Equal(t, StatusSubscribed, status)
}

func TestMemoryHubBroadcastFIFOPerSender(t *testing.T) {
	hub := NewMemoryHub(true, nil)
	sender, receiver := hub.Channel("session-1"), hub.Channel("session-1")
	senderRec, receiverRec := &recorder{}, &recorder{}
	subscribe(t, sender, senderRec)
	subscribe(t, receiver, receiverRec)
	defer sender.Unsubscribe()
	defer receiver.Unsubscribe()

	for i := 0; i < 10; i++ {
		require.NoError(t, sender.Send(context.Background(), "chat", map[string]int{"n": i}))
	}

	require.Eventually(t, func() bool { return receiverRec.messageCount() == 10 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return senderRec.messageCount() == 10 }, time.Second, 5*time.Millisecond)

	receiverRec.mu.Lock()
	defer receiverRec.mu.Unlock()
	for i, env := range receiverRec.messages {
		var body map[string]int
		require.NoError(t, json.Unmarshal(env.Payload, &body))
		assert.Equal(t, i, body["n"])
		assert.Equal(t, sender.Ref(), env.Sender)
	}
}

func TestMemoryHubSkipsOwnWhenConfigured(t *testing.T) {
	hub := NewMemoryHub(false, nil)
	sender, receiver := hub.Channel("session-1"), hub.Channel("session-1")
	senderRec, receiverRec := &recorder{}, &recorder{}
	subscribe(t, sender, senderRec)
	subscribe(t, receiver, receiverRec)

	require.NoError(t, sender.Send(context.Background(), "chat", "hi"))
	require.Eventually(t, func() bool { return receiverRec.messageCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, senderRec.messageCount())
}

func TestMemoryHubPresenceCountsDistinctKeys(t *testing.T) {
	hub := NewMemoryHub(true, nil)
	first, second, observer := hub.Channel("s"), hub.Channel("s"), hub.Channel("s")
	rec := &recorder{}
	subscribe(t, first, &recorder{})
	subscribe(t, second, &recorder{})
	subscribe(t, observer, rec)

	// same actor on two connections; the first is never untracked
	require.NoError(t, first.Track(context.Background(), "actor-a", map[string]string{"name": "A"}))
	require.NoError(t, second.Track(context.Background(), "actor-a", map[string]string{"name": "A"}))
	require.Eventually(t, func() bool { return rec.lastKeys() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, observer.Track(context.Background(), "actor-b", map[string]string{"name": "B"}))
	require.Eventually(t, func() bool { return rec.lastKeys() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, second.Unsubscribe())
	require.Eventually(t, func() bool {
		return len(observer.PresenceState()["actor-a"]) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, observer.PresenceState().Keys())
}

func TestMemoryHubUnsubscribeIdempotent(t *testing.T) {
	hub := NewMemoryHub(true, nil)
	ch := hub.Channel("s")
	require.NoError(t, ch.Unsubscribe())

	ch = hub.Channel("s")
	subscribe(t, ch, &recorder{})
	require.NoError(t, ch.Unsubscribe())
	require.NoError(t, ch.Unsubscribe())
	assert.ErrorIs(t, ch.Send(context.Background(), "chat", "late"), ErrNotSubscribed)
}
