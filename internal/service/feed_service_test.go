package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/feedtoken"
)

type memoryCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.items[key]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return payload, nil
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = payload
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

func (m *memoryCacheRepo) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type exporterStub struct {
	mu    sync.Mutex
	calls int
	last  TimelineRequest
	title string
}

func (e *exporterStub) Export(ctx context.Context, req TimelineRequest, format, title string) (ExportFile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = req
	e.title = title
	return ExportFile{Filename: "x." + format, ContentType: "text/calendar", Body: []byte("BEGIN:VCALENDAR")}, nil
}

func newFeedFixture(enabled bool) (*FeedService, *exporterStub, *memoryCacheRepo) {
	cfg := config.FeedsConfig{
		Enabled:         enabled,
		CacheTTL:        time.Minute,
		LookbackWindow:  7 * 24 * time.Hour,
		LookaheadWindow: 30 * 24 * time.Hour,
		PublicBaseURL:   "https://cal.example.com",
	}
	repo := newMemoryCacheRepo()
	exporter := &exporterStub{}
	svc := NewFeedService(cfg, feedtoken.NewSigner("secret", time.Hour), exporter, NewCacheService(repo, nil, time.Minute, nil, true), nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }
	return svc, exporter, repo
}

func tokenFromLink(t *testing.T, link FeedLink) string {
	t.Helper()
	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)
	return parsed.Query().Get("token")
}

func TestFeedServiceRendersAndCaches(t *testing.T) {
	svc, exporter, repo := newFeedFixture(true)

	link, err := svc.CreateLink("actor-a", "Ana")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://cal.example.com/feeds/calendar.ics?token="))

	token := tokenFromLink(t, link)
	file, cached, err := svc.Render(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "calendar.ics", file.Filename)
	assert.Equal(t, "actor-a", exporter.last.ActorID)
	assert.Equal(t, "Ana's circles", exporter.title)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), exporter.last.Start)
	assert.Equal(t, 1, repo.size())

	_, cached, err = svc.Render(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, exporter.calls)

	require.NoError(t, svc.InvalidateAll(context.Background()))
	assert.Zero(t, repo.size())
}

func TestFeedServiceRejectsBadTokens(t *testing.T) {
	svc, exporter, _ := newFeedFixture(true)

	_, _, err := svc.Render(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Zero(t, exporter.calls)
}

func TestFeedServiceDisabled(t *testing.T) {
	svc, _, _ := newFeedFixture(false)

	_, err := svc.CreateLink("actor-a", "Ana")
	assert.ErrorIs(t, err, appErrors.ErrUnavailable)
	_, _, err = svc.Render(context.Background(), "x")
	assert.ErrorIs(t, err, appErrors.ErrUnavailable)
}

func TestFeedServiceInvalidatesOnChange(t *testing.T) {
	svc, _, repo := newFeedFixture(true)
	feed := newFeedStub()
	svc.Start(context.Background(), NewEventStoreClient(&eventRepoStub{}, feed, nil, nil))
	defer svc.Stop()
	require.Equal(t, 1, feed.active())

	link, err := svc.CreateLink("actor-a", "")
	require.NoError(t, err)
	_, _, err = svc.Render(context.Background(), tokenFromLink(t, link))
	require.NoError(t, err)
	require.Equal(t, 1, repo.size())

	feed.emit(models.ChangeNotice{Table: models.TableEvents, Op: models.ChangeUpdate, RecordID: "evt-1"})
	require.Eventually(t, func() bool { return repo.size() == 0 }, time.Second, 5*time.Millisecond)

	svc.Stop()
	assert.Zero(t, feed.active())
}
