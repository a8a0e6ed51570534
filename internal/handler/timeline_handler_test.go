package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/circle-calendar-api/internal/middleware"
	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/internal/service"
)

type timelineServiceStub struct {
	captured service.TimelineRequest
	markers  []models.CelestialMarker
}

func (s *timelineServiceStub) Snapshot(ctx context.Context, req service.TimelineRequest) (models.TimelineSnapshot, error) {
	s.captured = req
	return models.TimelineSnapshot{WindowStart: req.Start, WindowEnd: req.End, ShowMarkers: req.ShowMarkers, Fingerprint: "fp1"}, nil
}

func (s *timelineServiceStub) Markers(start, end time.Time) ([]models.CelestialMarker, error) {
	return s.markers, nil
}

type exportServiceStub struct {
	format string
	title  string
}

func (s *exportServiceStub) Export(ctx context.Context, req service.TimelineRequest, format, title string) (service.ExportFile, error) {
	s.format, s.title = format, title
	return service.ExportFile{Filename: "timeline." + format, ContentType: "application/pdf", Body: []byte("%PDF")}, nil
}

func newTimelineRouter(h *TimelineHandler, authed bool) http.Handler {
	r := newTestRouter()
	r.Use(middleware.WithResponseMeta())
	if authed {
		r.Use(withActor("actor-a", "Ana"))
	}
	r.GET("/timeline", h.Get)
	r.GET("/timeline/export", h.Export)
	r.GET("/markers", h.Markers)
	return r
}

func TestTimelineHandlerRequiresAuth(t *testing.T) {
	h := NewTimelineHandler(&timelineServiceStub{}, &exportServiceStub{}, true)
	w := httptest.NewRecorder()
	newTimelineRouter(h, false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timeline", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTimelineHandlerParsesInclusiveWindow(t *testing.T) {
	stub := &timelineServiceStub{}
	h := NewTimelineHandler(stub, &exportServiceStub{}, true)
	w := httptest.NewRecorder()
	newTimelineRouter(h, true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timeline?start=2024-03-01&end=2024-03-31", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "actor-a", stub.captured.ActorID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), stub.captured.Start)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), stub.captured.End)
	assert.True(t, stub.captured.ShowMarkers)
	assert.Equal(t, `"fp1"`, w.Header().Get("ETag"))

	env := decodeEnvelope(t, w)
	var snapshot models.TimelineSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	assert.Equal(t, "fp1", snapshot.Fingerprint)
	assert.Equal(t, "fp1", env.Meta["fingerprint"])
}

func TestTimelineHandlerDefaultsToCurrentMonth(t *testing.T) {
	stub := &timelineServiceStub{}
	h := NewTimelineHandler(stub, &exportServiceStub{}, true)
	h.now = func() time.Time { return time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC) }
	w := httptest.NewRecorder()
	newTimelineRouter(h, true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timeline?show_markers=false", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), stub.captured.Start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), stub.captured.End)
	assert.False(t, stub.captured.ShowMarkers)
}

func TestTimelineHandlerNotModified(t *testing.T) {
	h := NewTimelineHandler(&timelineServiceStub{}, &exportServiceStub{}, true)
	req := httptest.NewRequest(http.MethodGet, "/timeline?start=2024-03-01&end=2024-03-31", nil)
	req.Header.Set("If-None-Match", `"fp1"`)
	w := httptest.NewRecorder()
	newTimelineRouter(h, true).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestTimelineHandlerRejectsInvalidDate(t *testing.T) {
	h := NewTimelineHandler(&timelineServiceStub{}, &exportServiceStub{}, true)
	w := httptest.NewRecorder()
	newTimelineRouter(h, true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timeline?start=bad", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimelineHandlerExport(t *testing.T) {
	exports := &exportServiceStub{}
	h := NewTimelineHandler(&timelineServiceStub{}, exports, true)
	w := httptest.NewRecorder()
	newTimelineRouter(h, true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timeline/export?format=pdf", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf", exports.format)
	assert.Equal(t, "Ana", exports.title)
	assert.Equal(t, `attachment; filename="timeline.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestTimelineHandlerMarkers(t *testing.T) {
	stub := &timelineServiceStub{markers: []models.CelestialMarker{{ID: "new_moon-2024-03-10", Label: "New Moon", PhaseKind: models.PhaseNewMoon}}}
	h := NewTimelineHandler(stub, &exportServiceStub{}, true)
	w := httptest.NewRecorder()
	newTimelineRouter(h, false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/markers?start=2024-03-01&end=2024-03-31", nil))

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, float64(1), env.Meta["count"])
}
