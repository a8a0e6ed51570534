package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/feedtoken"
	"github.com/noah-isme/circle-calendar-api/pkg/jobs"
)

const (
	feedCachePrefix   = "feed:"
	feedInvalidateKey = "feeds"
	feedPath          = "/feeds/calendar.ics"
)

type feedExporter interface {
	Export(ctx context.Context, req TimelineRequest, format, title string) (ExportFile, error)
}

// FeedLink is a subscribable calendar URL.
type FeedLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FeedService issues signed ICS feed links and serves the feeds they point
// to. Rendered feeds are cached until the next calendar change.
type FeedService struct {
	cfg     config.FeedsConfig
	signer  *feedtoken.Signer
	exports feedExporter
	cache   *CacheService
	logger  *zap.Logger
	now     func() time.Time

	queue *jobs.Queue
	sub   *Subscription
}

// NewFeedService constructs the feed service.
func NewFeedService(cfg config.FeedsConfig, signer *feedtoken.Signer, exports feedExporter, cache *CacheService, logger *zap.Logger) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FeedService{
		cfg:     cfg,
		signer:  signer,
		exports: exports,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
	s.queue = jobs.NewQueue("feed-invalidate", s.handleInvalidate, jobs.QueueConfig{Workers: 1, BufferSize: 4, Logger: logger})
	return s
}

// Start drops cached feeds whenever a calendar table changes. Without a
// change feed, cached feeds simply age out.
func (s *FeedService) Start(ctx context.Context, changes changeSubscriber) {
	s.queue.Start(ctx)
	if changes == nil || !s.cache.Enabled() {
		return
	}
	sub, err := changes.Subscribe(ctx, models.ChangeFilter{}, func(models.ChangeNotice) {
		if _, err := s.queue.Enqueue(jobs.Job{Key: feedInvalidateKey, Type: "feed.invalidate"}); err != nil {
			s.logger.Warn("feed invalidation not scheduled", zap.Error(err))
		}
	})
	if err != nil {
		s.logger.Warn("feed cache will not follow changes", zap.Error(err))
		return
	}
	s.sub = sub
}

// Stop ends the change subscription and the invalidation worker.
func (s *FeedService) Stop() {
	s.sub.Unsubscribe()
	s.queue.Stop()
}

// CreateLink signs a feed URL for the actor.
func (s *FeedService) CreateLink(actorID, displayName string) (FeedLink, error) {
	if !s.cfg.Enabled {
		return FeedLink{}, appErrors.Clone(appErrors.ErrUnavailable, "calendar feeds are disabled")
	}
	if actorID == "" {
		return FeedLink{}, appErrors.ErrUnauthorized
	}
	token, expiresAt, err := s.signer.Generate(actorID, displayName)
	if err != nil {
		return FeedLink{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign feed link")
	}
	return FeedLink{
		URL:       fmt.Sprintf("%s%s?token=%s", s.cfg.PublicBaseURL, feedPath, url.QueryEscape(token)),
		ExpiresAt: expiresAt,
	}, nil
}

// Render returns the ICS feed for token and whether it came from cache.
func (s *FeedService) Render(ctx context.Context, token string) (ExportFile, bool, error) {
	if !s.cfg.Enabled {
		return ExportFile{}, false, appErrors.Clone(appErrors.ErrUnavailable, "calendar feeds are disabled")
	}
	claims, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, feedtoken.ErrExpired) {
			return ExportFile{}, false, appErrors.Clone(appErrors.ErrUnauthorized, "feed link expired")
		}
		return ExportFile{}, false, appErrors.Clone(appErrors.ErrUnauthorized, "invalid feed link")
	}

	day := s.now().UTC().Truncate(24 * time.Hour)
	key := fmt.Sprintf("%s%s:%s", feedCachePrefix, claims.ActorID, day.Format("20060102"))
	if body, hit, _ := s.cache.Get(ctx, key); hit {
		return ExportFile{Filename: "calendar.ics", ContentType: "text/calendar; charset=utf-8", Body: body}, true, nil
	}

	req := TimelineRequest{
		ActorID:     claims.ActorID,
		Start:       day.Add(-s.cfg.LookbackWindow),
		End:         day.Add(s.cfg.LookaheadWindow),
		ShowMarkers: true,
	}
	title := "Circle calendar"
	if claims.DisplayName != "" {
		title = claims.DisplayName + "'s circles"
	}
	file, err := s.exports.Export(ctx, req, ExportICS, title)
	if err != nil {
		return ExportFile{}, false, err
	}
	file.Filename = "calendar.ics"
	_ = s.cache.Set(ctx, key, file.Body, s.cfg.CacheTTL)
	return file, false, nil
}

// InvalidateAll drops every cached feed.
func (s *FeedService) InvalidateAll(ctx context.Context) error {
	return s.cache.Invalidate(ctx, feedCachePrefix+"*")
}

func (s *FeedService) handleInvalidate(ctx context.Context, _ jobs.Job) error {
	return s.InvalidateAll(ctx)
}
