package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/realtime"
)

type historyStub struct {
	mu        sync.Mutex
	recent    []models.ChatMessage
	appended  []models.ChatMessage
	appendErr error
}

func (h *historyStub) Append(ctx context.Context, msg *models.ChatMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appended = append(h.appended, *msg)
	return h.appendErr
}

func (h *historyStub) ListRecent(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	return h.recent, nil
}

type roomInbox struct {
	messages chan models.ChatMessage
}

func newRoomInbox() *roomInbox {
	return &roomInbox{messages: make(chan models.ChatMessage, 16)}
}

func (i *roomInbox) events() RoomEvents {
	return RoomEvents{OnMessage: func(m models.ChatMessage) { i.messages <- m }}
}

func newTestRoomService(cfg config.ChatConfig, history chatHistory) *RoomService {
	return NewRoomService(realtime.NewMemoryHub(true, nil), history, cfg, "", nil, nil, nil)
}

func actor(id string) models.PresenceRecord {
	return models.PresenceRecord{ActorID: id, DisplayName: strings.ToUpper(id)}
}

func TestRoomMemberCountCountsDistinctActors(t *testing.T) {
	svc := newTestRoomService(config.ChatConfig{}, nil)
	ctx := context.Background()

	a1, err := svc.Join(ctx, "session-1", actor("a"), RoomEvents{})
	require.NoError(t, err)
	defer a1.Leave()
	a2, err := svc.Join(ctx, "session-1", actor("a"), RoomEvents{})
	require.NoError(t, err)
	b, err := svc.Join(ctx, "session-1", actor("b"), RoomEvents{})
	require.NoError(t, err)
	defer b.Leave()

	require.Eventually(t, func() bool { return a1.MemberCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, svc.OpenSessions())

	require.NoError(t, a2.Leave())
	require.NoError(t, a2.Leave())
	assert.Equal(t, 2, svc.OpenSessions())
	require.Eventually(t, func() bool { return b.MemberCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a1.Leave())
	require.Eventually(t, func() bool { return b.MemberCount() == 1 }, time.Second, 5*time.Millisecond)
	members := b.Members()
	require.Len(t, members, 1)
	assert.Equal(t, "B", members[0].DisplayName)
}

func TestRoomSendBroadcastsToPeers(t *testing.T) {
	svc := newTestRoomService(config.ChatConfig{}, nil)
	ctx := context.Background()

	inbox := newRoomInbox()
	listener, err := svc.Join(ctx, "session-1", actor("b"), inbox.events())
	require.NoError(t, err)
	defer listener.Leave()
	sender, err := svc.Join(ctx, "session-1", actor("a"), RoomEvents{})
	require.NoError(t, err)
	defer sender.Leave()

	sent, err := sender.Send(ctx, "  hello there ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", sent.Body)
	assert.NotEmpty(t, sent.ID)

	select {
	case got := <-inbox.messages:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "a", got.SenderID)
		assert.Equal(t, "A", got.SenderName)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRoomMuteIsLocalFilter(t *testing.T) {
	svc := newTestRoomService(config.ChatConfig{}, nil)
	inbox := newRoomInbox()
	session, err := svc.Join(context.Background(), "session-1", actor("b"), inbox.events())
	require.NoError(t, err)
	defer session.Leave()

	envelope := func(sender string) realtime.Envelope {
		payload, _ := json.Marshal(models.ChatMessage{ID: sender + "-msg", SenderID: sender, Body: "hi"})
		return realtime.Envelope{Event: RoomEventChat, Payload: payload}
	}

	session.Mute("a")
	session.handleBroadcast(envelope("a"))
	session.handleBroadcast(envelope("c"))
	session.Unmute("a")
	session.handleBroadcast(envelope("a"))
	session.SetMuted(true)
	session.handleBroadcast(envelope("c"))

	require.Len(t, inbox.messages, 2)
	assert.Equal(t, "c-msg", (<-inbox.messages).ID)
	assert.Equal(t, "a-msg", (<-inbox.messages).ID)
	assert.True(t, session.IsMuted("anyone"))
}

func TestRoomSendValidatesAndThrottles(t *testing.T) {
	svc := newTestRoomService(config.ChatConfig{MaxBodyLength: 5, RatePerSecond: 0.001, Burst: 1}, nil)
	session, err := svc.Join(context.Background(), "session-1", actor("a"), RoomEvents{})
	require.NoError(t, err)
	defer session.Leave()

	_, err = session.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = session.Send(context.Background(), "too long")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = session.Send(context.Background(), "ok")
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "again")
	assert.ErrorIs(t, err, appErrors.ErrRateLimited)
}

func TestRoomHistoryReadOnJoinAndAppendBestEffort(t *testing.T) {
	history := &historyStub{
		recent:    []models.ChatMessage{{ID: "old-1", Body: "earlier"}},
		appendErr: errors.New("db down"),
	}
	svc := newTestRoomService(config.ChatConfig{HistoryEnabled: true, HistoryLimit: 10}, history)

	var replay []models.ChatMessage
	session, err := svc.Join(context.Background(), "session-1", actor("a"), RoomEvents{
		OnHistory: func(messages []models.ChatMessage) { replay = messages },
	})
	require.NoError(t, err)
	defer session.Leave()
	require.Len(t, replay, 1)
	assert.Equal(t, "old-1", replay[0].ID)

	msg, err := session.Send(context.Background(), "stored")
	require.NoError(t, err)
	require.Len(t, history.appended, 1)
	assert.Equal(t, msg.ID, history.appended[0].ID)
}

func TestRoomSendAfterLeave(t *testing.T) {
	svc := newTestRoomService(config.ChatConfig{}, nil)
	session, err := svc.Join(context.Background(), "session-1", actor("a"), RoomEvents{})
	require.NoError(t, err)
	require.NoError(t, session.Leave())

	_, err = session.Send(context.Background(), "late")
	assert.ErrorIs(t, err, appErrors.ErrRoomClosed)
	assert.Zero(t, svc.OpenSessions())
}

func TestRoomJoinValidation(t *testing.T) {
	svc := newTestRoomService(config.ChatConfig{}, nil)
	_, err := svc.Join(context.Background(), " ", actor("a"), RoomEvents{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.Join(context.Background(), "session-1", models.PresenceRecord{}, RoomEvents{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

type failingClient struct{}

func (failingClient) Channel(topic string) realtime.Channel { return &failingChannel{} }
func (failingClient) Close() error                          { return nil }

type failingChannel struct {
	unsubscribed int
}

func (c *failingChannel) Ref() string { return "failing" }
func (c *failingChannel) Subscribe(ctx context.Context, handlers realtime.Handlers, onStatus func(realtime.Status, error)) error {
	onStatus(realtime.StatusChannelError, errors.New("refused"))
	return nil
}
func (c *failingChannel) Send(ctx context.Context, event string, payload interface{}) error {
	return realtime.ErrNotSubscribed
}
func (c *failingChannel) Track(ctx context.Context, key string, meta interface{}) error {
	return realtime.ErrNotSubscribed
}
func (c *failingChannel) Untrack(ctx context.Context) error     { return nil }
func (c *failingChannel) Resync(ctx context.Context) error      { return nil }
func (c *failingChannel) PresenceState() realtime.PresenceState { return nil }
func (c *failingChannel) Unsubscribe() error {
	c.unsubscribed++
	return nil
}

func TestRoomJoinFailsWhenChannelErrors(t *testing.T) {
	svc := NewRoomService(failingClient{}, nil, config.ChatConfig{}, "", nil, nil, nil)
	_, err := svc.Join(context.Background(), "session-1", actor("a"), RoomEvents{})
	assert.ErrorIs(t, err, appErrors.ErrUnavailable)
	assert.Zero(t, svc.OpenSessions())
}

func TestRoomServiceSchedulesResync(t *testing.T) {
	svc := NewRoomService(realtime.NewMemoryHub(true, nil), nil, config.ChatConfig{}, "every never", nil, nil, nil)
	assert.Error(t, svc.Start())

	svc = NewRoomService(realtime.NewMemoryHub(true, nil), nil, config.ChatConfig{}, "@every 1h", nil, nil, nil)
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start())

	session, err := svc.Join(context.Background(), "session-1", actor("a"), RoomEvents{})
	require.NoError(t, err)
	svc.ResyncAll()
	svc.Stop()
	assert.Zero(t, svc.OpenSessions())
	_, err = session.Send(context.Background(), "closed")
	assert.ErrorIs(t, err, appErrors.ErrRoomClosed)
}

func TestDerivePresenceUsesOneMemberPerKey(t *testing.T) {
	early := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	meta := func(name string, at time.Time) json.RawMessage {
		raw, _ := json.Marshal(models.PresenceRecord{DisplayName: name, JoinedAt: at})
		return raw
	}
	state := realtime.PresenceState{
		"a": {{Ref: "1", Meta: meta("Old A", early)}, {Ref: "2", Meta: meta("New A", early.Add(time.Hour))}},
		"b": {{Ref: "3", Meta: meta("B", early.Add(time.Minute))}},
	}

	presence := derivePresence("s", state)
	assert.Equal(t, 2, presence.MemberCount)
	require.Len(t, presence.Members, 2)
	assert.Equal(t, "b", presence.Members[0].ActorID)
	assert.Equal(t, "New A", presence.Members[1].DisplayName)
}
