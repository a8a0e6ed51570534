package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
	"github.com/noah-isme/circle-calendar-api/pkg/database"
)

type notificationSource interface {
	Ping() error
	Close() error
}

type changeSubscriber struct {
	filter  models.ChangeFilter
	handler func(models.ChangeNotice)
}

// ChangeFeed fans out Postgres NOTIFY payloads emitted by the calendar
// triggers to in-process subscribers. Handlers run on the feed goroutine and
// must not block.
type ChangeFeed struct {
	notify       <-chan *pq.Notification
	source       notificationSource
	pingInterval time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	subs   map[int]changeSubscriber
	nextID int

	closeOnce sync.Once
}

// NewChangeFeed opens a dedicated listener connection on cfg.ChangeChannel.
func NewChangeFeed(cfg config.DatabaseConfig, logger *zap.Logger) (*ChangeFeed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	listener := pq.NewListener(database.DSN(cfg), cfg.ListenerMinBackoff, cfg.ListenerMaxBackoff, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("change listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(cfg.ChangeChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", cfg.ChangeChannel, err)
	}
	return newChangeFeed(listener.Notify, listener, cfg.ListenerPingTimeout, logger), nil
}

func newChangeFeed(notify <-chan *pq.Notification, source notificationSource, ping time.Duration, logger *zap.Logger) *ChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ping <= 0 {
		ping = 90 * time.Second
	}
	return &ChangeFeed{
		notify:       notify,
		source:       source,
		pingInterval: ping,
		logger:       logger,
		subs:         make(map[int]changeSubscriber),
	}
}

// Subscribe registers handler for notices matching filter. The returned
// function removes the subscription and may be called more than once.
func (f *ChangeFeed) Subscribe(filter models.ChangeFilter, handler func(models.ChangeNotice)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = changeSubscriber{filter: filter, handler: handler}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (f *ChangeFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Run dispatches notifications until ctx is cancelled or the source closes.
func (f *ChangeFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-f.notify:
			if !ok {
				return
			}
			if n == nil {
				// pq delivers nil after a reconnect.
				f.dispatch(models.ChangeNotice{Op: models.ChangeResync, At: time.Now().UTC()})
				continue
			}
			notice, err := decodeNotice(n.Extra)
			if err != nil {
				f.logger.Warn("drop malformed change notice", zap.String("channel", n.Channel), zap.Error(err))
				continue
			}
			f.dispatch(notice)
		case <-ticker.C:
			if f.source == nil {
				continue
			}
			go func() {
				if err := f.source.Ping(); err != nil {
					f.logger.Warn("change listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (f *ChangeFeed) dispatch(notice models.ChangeNotice) {
	f.mu.RLock()
	handlers := make([]func(models.ChangeNotice), 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.filter.Matches(notice) {
			handlers = append(handlers, sub.handler)
		}
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(notice)
	}
}

// Close stops the underlying listener.
func (f *ChangeFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		if f.source != nil {
			err = f.source.Close()
		}
	})
	return err
}

func decodeNotice(payload string) (models.ChangeNotice, error) {
	var notice models.ChangeNotice
	if err := json.Unmarshal([]byte(payload), &notice); err != nil {
		return notice, err
	}
	if notice.Table == "" {
		return notice, fmt.Errorf("notice without table")
	}
	if notice.At.IsZero() {
		notice.At = time.Now().UTC()
	}
	return notice, nil
}
