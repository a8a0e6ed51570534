package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/realtime"
)

// Broadcast event names used on room channels.
const (
	RoomEventChat = "chat"
)

// ThrottledNotice is shown when an actor sends faster than allowed.
const ThrottledNotice = "You're sending messages too quickly. Please wait a moment."

type chatHistory interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	ListRecent(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
}

// RoomEvents are callbacks a room session invokes for its connection. They
// run on the channel's delivery goroutine and must not block for long.
type RoomEvents struct {
	OnPresence func(models.RoomPresence)
	OnMessage  func(models.ChatMessage)
	OnHistory  func([]models.ChatMessage)
	// OnDegraded fires once when the channel fails after joining. The session
	// keeps its last known presence and no longer receives updates.
	OnDegraded func(error)
}

// RoomService joins connections to per-session presence and chat rooms.
type RoomService struct {
	client     realtime.Client
	history    chatHistory
	cfg        config.ChatConfig
	resyncSpec string
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    *MetricsService

	mu       sync.Mutex
	sessions map[string]*RoomSession
	limiters map[string]*rate.Limiter
	cron     *cron.Cron
	now      func() time.Time
}

// NewRoomService constructs the service. history may be nil.
func NewRoomService(client realtime.Client, history chatHistory, cfg config.ChatConfig, resyncSpec string, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = 2000
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &RoomService{
		client:     client,
		history:    history,
		cfg:        cfg,
		resyncSpec: resyncSpec,
		validator:  validate,
		logger:     logger,
		metrics:    metrics,
		sessions:   make(map[string]*RoomSession),
		limiters:   make(map[string]*rate.Limiter),
		now:        time.Now,
	}
}

// Start schedules the periodic presence resync. An empty cron schedule disables it.
func (s *RoomService) Start() error {
	if s.resyncSpec == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.resyncSpec, s.ResyncAll); err != nil {
		return fmt.Errorf("schedule presence resync %q: %w", s.resyncSpec, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the resync schedule and leaves every open session.
func (s *RoomService) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	sessions := make([]*RoomSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	for _, session := range sessions {
		_ = session.Leave()
	}
}

// ResyncAll asks every open session to re-emit a full presence snapshot.
func (s *RoomService) ResyncAll() {
	s.mu.Lock()
	sessions := make([]*RoomSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := session.channel.Resync(ctx); err != nil {
			s.logger.Debug("presence resync failed", zap.String("session_id", session.sessionID), zap.Error(err))
		}
		cancel()
	}
}

// OpenSessions reports the number of joined connections on this instance.
func (s *RoomService) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Join subscribes to the session's room, waits for the subscription to be
// confirmed, then tracks actor's presence.
func (s *RoomService) Join(ctx context.Context, sessionID string, actor models.PresenceRecord, events RoomEvents) (*RoomSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || actor.ActorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session id and actor are required")
	}
	if actor.JoinedAt.IsZero() {
		actor.JoinedAt = s.now().UTC()
	}

	session := &RoomSession{
		id:        uuid.NewString(),
		sessionID: sessionID,
		actor:     actor,
		channel:   s.client.Channel(roomTopic(sessionID)),
		service:   s,
		events:    events,
		muted:     make(map[string]struct{}),
		presence:  models.RoomPresence{SessionID: sessionID},
	}

	// The first status settles the join; later errors degrade the session.
	confirmed := make(chan error, 1)
	var settled sync.Once
	err := session.channel.Subscribe(ctx, realtime.Handlers{
		OnBroadcast:    session.handleBroadcast,
		OnPresenceSync: session.handlePresence,
	}, func(status realtime.Status, err error) {
		if status == realtime.StatusClosed {
			return
		}
		if status == realtime.StatusChannelError && err == nil {
			err = fmt.Errorf("channel error")
		}
		first := false
		settled.Do(func() {
			first = true
			confirmed <- err
		})
		if !first && err != nil {
			session.degrade(err)
		}
	})
	if err != nil {
		_ = session.channel.Unsubscribe()
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to join room")
	}

	select {
	case err := <-confirmed:
		if err != nil {
			_ = session.channel.Unsubscribe()
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to join room")
		}
	case <-ctx.Done():
		_ = session.channel.Unsubscribe()
		return nil, appErrors.Wrap(ctx.Err(), appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "room join cancelled")
	}

	if err := session.channel.Track(ctx, actor.ActorID, actor); err != nil {
		_ = session.channel.Unsubscribe()
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to track presence")
	}

	s.mu.Lock()
	s.sessions[session.id] = session
	s.mu.Unlock()
	s.metrics.AddRoomConnections(1)

	if s.cfg.HistoryEnabled && s.history != nil {
		messages, err := s.history.ListRecent(ctx, sessionID, s.cfg.HistoryLimit)
		if err != nil {
			s.logger.Warn("chat history unavailable", zap.String("session_id", sessionID), zap.Error(err))
		} else if events.OnHistory != nil {
			events.OnHistory(messages)
		}
	}

	s.logger.Info("room joined",
		zap.String("session_id", sessionID),
		zap.String("actor_id", actor.ActorID),
		zap.String("connection_id", session.id),
	)
	return session, nil
}

func (s *RoomService) limiterFor(actorID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[actorID]
	if !ok {
		limit := rate.Inf
		if s.cfg.RatePerSecond > 0 {
			limit = rate.Limit(s.cfg.RatePerSecond)
		}
		burst := s.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(limit, burst)
		s.limiters[actorID] = limiter
	}
	return limiter
}

func (s *RoomService) remove(session *RoomSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session.id)

	// Drop the actor's limiter once none of their connections remain.
	for _, other := range s.sessions {
		if other.actor.ActorID == session.actor.ActorID {
			return
		}
	}
	delete(s.limiters, session.actor.ActorID)
}

func roomTopic(sessionID string) string {
	return "room:" + sessionID
}

// RoomSession is one connection's membership in a room.
type RoomSession struct {
	id        string
	sessionID string
	actor     models.PresenceRecord
	channel   realtime.Channel
	service   *RoomService
	events    RoomEvents

	mu       sync.Mutex
	mutedAll bool
	muted    map[string]struct{}
	presence models.RoomPresence
	degraded bool
	closed   bool

	leaveOnce sync.Once
}

// ID returns the connection id.
func (r *RoomSession) ID() string { return r.id }

// SessionID returns the room's session id.
func (r *RoomSession) SessionID() string { return r.sessionID }

// Send validates body and broadcasts it to the room. Delivery is best-effort.
func (r *RoomSession) Send(ctx context.Context, body string) (models.ChatMessage, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return models.ChatMessage{}, appErrors.ErrRoomClosed
	}

	svc := r.service
	body = strings.TrimSpace(body)
	if err := svc.validator.Var(body, fmt.Sprintf("required,max=%d", svc.cfg.MaxBodyLength)); err != nil {
		svc.metrics.RecordChatMessage("invalid")
		return models.ChatMessage{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "message body is empty or too long")
	}
	if !svc.limiterFor(r.actor.ActorID).Allow() {
		svc.metrics.RecordChatMessage("throttled")
		return models.ChatMessage{}, appErrors.Clone(appErrors.ErrRateLimited, ThrottledNotice)
	}

	msg := models.ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  r.sessionID,
		SenderID:   r.actor.ActorID,
		SenderName: r.actor.DisplayName,
		Body:       body,
		SentAt:     svc.now().UTC(),
	}
	if err := r.channel.Send(ctx, RoomEventChat, msg); err != nil {
		svc.metrics.RecordChatMessage("failed")
		return models.ChatMessage{}, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "message could not be sent")
	}
	svc.metrics.RecordChatMessage("sent")

	if svc.cfg.HistoryEnabled && svc.history != nil {
		if err := svc.history.Append(ctx, &msg); err != nil {
			svc.logger.Warn("chat history append failed", zap.String("session_id", r.sessionID), zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return msg, nil
}

// SetMuted hides or shows every incoming message for this connection only.
func (r *RoomSession) SetMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutedAll = muted
}

// Mute hides messages from senderID for this connection only.
func (r *RoomSession) Mute(senderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted[senderID] = struct{}{}
}

// Unmute reverses Mute.
func (r *RoomSession) Unmute(senderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.muted, senderID)
}

// IsMuted reports whether messages from senderID are hidden.
func (r *RoomSession) IsMuted(senderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mutedAll {
		return true
	}
	_, ok := r.muted[senderID]
	return ok
}

// MemberCount is the number of distinct actors in the last presence sync.
func (r *RoomSession) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.MemberCount
}

// Members returns the actors in the last presence sync.
func (r *RoomSession) Members() []models.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PresenceRecord, len(r.presence.Members))
	copy(out, r.presence.Members)
	return out
}

// Presence returns the last derived presence view.
func (r *RoomSession) Presence() models.RoomPresence {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.presence
	p.Members = append([]models.PresenceRecord(nil), r.presence.Members...)
	return p
}

// Degraded reports whether the channel failed after joining.
func (r *RoomSession) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

// Leave untracks presence and unsubscribes. Safe to call more than once.
func (r *RoomSession) Leave() error {
	var err error
	r.leaveOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if untrackErr := r.channel.Untrack(ctx); untrackErr != nil && !errors.Is(untrackErr, realtime.ErrNotSubscribed) {
			r.service.logger.Debug("presence untrack failed", zap.String("session_id", r.sessionID), zap.Error(untrackErr))
		}
		err = r.channel.Unsubscribe()

		r.service.remove(r)
		r.service.metrics.AddRoomConnections(-1)
		r.service.logger.Info("room left",
			zap.String("session_id", r.sessionID),
			zap.String("actor_id", r.actor.ActorID),
			zap.String("connection_id", r.id),
		)
	})
	return err
}

func (r *RoomSession) handleBroadcast(env realtime.Envelope) {
	if env.Event != RoomEventChat {
		return
	}
	var msg models.ChatMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		r.service.logger.Debug("ignoring malformed chat payload", zap.String("session_id", r.sessionID), zap.Error(err))
		return
	}
	if r.IsMuted(msg.SenderID) {
		return
	}
	if r.events.OnMessage != nil {
		r.events.OnMessage(msg)
	}
}

// handlePresence rebuilds the member view from a full snapshot.
func (r *RoomSession) handlePresence(state realtime.PresenceState) {
	presence := derivePresence(r.sessionID, state)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.presence = presence
	r.mu.Unlock()

	if r.events.OnPresence != nil {
		r.events.OnPresence(presence)
	}
}

func (r *RoomSession) degrade(err error) {
	r.mu.Lock()
	if r.degraded || r.closed {
		r.mu.Unlock()
		return
	}
	r.degraded = true
	r.mu.Unlock()

	r.service.logger.Warn("room channel degraded", zap.String("session_id", r.sessionID), zap.Error(err))
	if r.events.OnDegraded != nil {
		r.events.OnDegraded(err)
	}
}

// derivePresence counts one member per presence key, using the most recent
// join under that key for display.
func derivePresence(sessionID string, state realtime.PresenceState) models.RoomPresence {
	members := make([]models.PresenceRecord, 0, len(state))
	for key, entries := range state {
		record := models.PresenceRecord{ActorID: key}
		for _, entry := range entries {
			var meta models.PresenceRecord
			if err := json.Unmarshal(entry.Meta, &meta); err != nil {
				continue
			}
			if meta.JoinedAt.After(record.JoinedAt) || record.DisplayName == "" {
				record.DisplayName = meta.DisplayName
				record.JoinedAt = meta.JoinedAt
			}
		}
		members = append(members, record)
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ActorID < members[j].ActorID
	})
	return models.RoomPresence{SessionID: sessionID, MemberCount: len(members), Members: members}
}
