package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/circle-calendar-api/internal/dto"
	"github.com/noah-isme/circle-calendar-api/internal/middleware"
	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/internal/service"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/response"
)

type timelineService interface {
	Snapshot(ctx context.Context, req service.TimelineRequest) (models.TimelineSnapshot, error)
	Markers(start, end time.Time) ([]models.CelestialMarker, error)
}

type exportService interface {
	Export(ctx context.Context, req service.TimelineRequest, format, title string) (service.ExportFile, error)
}

// TimelineHandler serves composed timelines, markers and agenda exports.
type TimelineHandler struct {
	timeline    timelineService
	exports     exportService
	showMarkers bool
	now         func() time.Time
}

// NewTimelineHandler constructs the handler. showMarkers is the default of
// the show_markers query parameter.
func NewTimelineHandler(timeline timelineService, exports exportService, showMarkers bool) *TimelineHandler {
	return &TimelineHandler{timeline: timeline, exports: exports, showMarkers: showMarkers, now: time.Now}
}

// Get godoc
// @Summary Composed timeline for the current actor
// @Tags Timeline
// @Produce json
// @Param start query string false "First day (YYYY-MM-DD)"
// @Param end query string false "Last day, inclusive (YYYY-MM-DD)"
// @Param show_markers query bool false "Include celestial markers"
// @Success 200 {object} response.Envelope
// @Success 304 "Unchanged since If-None-Match"
// @Router /timeline [get]
func (h *TimelineHandler) Get(c *gin.Context) {
	req, err := h.request(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	snapshot, err := h.timeline.Snapshot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if match := c.GetHeader("If-None-Match"); match != "" && strings.Trim(match, `"`) == snapshot.Fingerprint {
		response.NotModified(c)
		return
	}
	middleware.SetFingerprint(c, snapshot.Fingerprint)
	response.JSON(c, http.StatusOK, snapshot, middleware.ExtractMeta(c))
}

// Markers godoc
// @Summary Celestial markers of a window
// @Tags Timeline
// @Produce json
// @Param start query string false "First day (YYYY-MM-DD)"
// @Param end query string false "Last day, inclusive (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /markers [get]
func (h *TimelineHandler) Markers(c *gin.Context) {
	var query dto.TimelineQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	start, end, err := parseWindow(query.Start, query.End, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	markers, err := h.timeline.Markers(start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, markers, map[string]interface{}{"count": len(markers)})
}

// Export godoc
// @Summary Download the composed timeline as an agenda
// @Tags Timeline
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv, pdf or ics" default(csv)
// @Param start query string false "First day (YYYY-MM-DD)"
// @Param end query string false "Last day, inclusive (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /timeline/export [get]
func (h *TimelineHandler) Export(c *gin.Context) {
	req, err := h.request(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := c.DefaultQuery("format", service.ExportCSV)

	file, err := h.exports.Export(c.Request.Context(), req, format, displayName(claimsFromContext(c)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

func (h *TimelineHandler) request(c *gin.Context) (service.TimelineRequest, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.TimelineRequest{}, appErrors.ErrUnauthorized
	}
	var query dto.TimelineQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return service.TimelineRequest{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query")
	}
	start, end, err := parseWindow(query.Start, query.End, h.now())
	if err != nil {
		return service.TimelineRequest{}, err
	}
	return service.TimelineRequest{
		ActorID:     claims.Actor(),
		Start:       start,
		End:         end,
		ShowMarkers: boolOr(query.ShowMarkers, h.showMarkers),
	}, nil
}
