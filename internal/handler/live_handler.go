package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/dto"
	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/internal/service"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/response"
)

type liveViews interface {
	Open(ctx context.Context, req service.TimelineRequest, push func(models.TimelineSnapshot)) (*service.LiveView, error)
}

// LiveHandler streams a viewer's timeline over a websocket.
type LiveHandler struct {
	views       liveViews
	upgrader    websocket.Upgrader
	showMarkers bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewLiveHandler constructs the handler.
func NewLiveHandler(views liveViews, allowedOrigins []string, showMarkers bool, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveHandler{
		views:       views,
		upgrader:    newUpgrader(allowedOrigins),
		showMarkers: showMarkers,
		logger:      logger,
		now:         time.Now,
	}
}

// Timeline godoc
// @Summary Live timeline socket
// @Description Pushes a snapshot frame on connect and after every change. Accepts window, drag_start, drag_cancel, drop and h frames.
// @Tags Timeline
// @Param start query string false "First day (YYYY-MM-DD)"
// @Param end query string false "Last day, inclusive (YYYY-MM-DD)"
// @Param show_markers query bool false "Include celestial markers"
// @Param access_token query string false "Access token when no Authorization header can be sent"
// @Success 101 "Switching Protocols"
// @Router /timeline/live [get]
func (h *LiveHandler) Timeline(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
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
	req := service.TimelineRequest{
		ActorID:     claims.Actor(),
		Start:       start,
		End:         end,
		ShowMarkers: boolOr(query.ShowMarkers, h.showMarkers),
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("live upgrade failed", zap.Error(err))
		return
	}
	sock := newSocket(conn, h.logger)
	go sock.writeLoop()
	defer sock.close()

	ctx := c.Request.Context()
	view, err := h.views.Open(ctx, req, func(snapshot models.TimelineSnapshot) {
		sock.send(dto.FrameSnapshot, snapshot)
	})
	if err != nil {
		sock.sendError(err)
		return
	}
	defer view.Close()

	view.Gesture().OnTransition(func(from, to models.GestureState) {
		sock.send(dto.FrameGesture, dto.GestureFrame{From: string(from), To: string(to)})
	})
	if view.Static() {
		sock.send(dto.FrameNotice, dto.NoticeFrame{Message: "Live updates are unavailable. Reload to refresh."})
	}

	h.logger.Debug("live view opened", zap.String("view_id", view.ID()), zap.String("actor_id", req.ActorID))
	sock.readLoop(func(frame dto.ClientFrame) {
		h.handleFrame(ctx, sock, view, frame)
	})
}

func (h *LiveHandler) handleFrame(ctx context.Context, sock *socket, view *service.LiveView, frame dto.ClientFrame) {
	switch frame.Type {
	case dto.FrameWindow:
		start, end, err := parseWindow(frame.Start, frame.End, h.now())
		if err != nil {
			sock.sendError(err)
			return
		}
		if err := view.SetWindow(ctx, start, end, boolOr(frame.ShowMarkers, view.Last().ShowMarkers)); err != nil {
			sock.sendError(err)
		}
	case dto.FrameDragStart:
		if err := view.BeginDrag(frame.EntryID); err != nil {
			sock.sendError(err)
		}
	case dto.FrameDragCancel:
		if err := view.CancelDrag(); err != nil {
			sock.sendError(err)
		}
	case dto.FrameDrop:
		start, errStart := time.Parse(time.RFC3339, frame.Start)
		end, errEnd := time.Parse(time.RFC3339, frame.End)
		if errStart != nil || errEnd != nil {
			_ = view.CancelDrag()
			sock.sendError(appErrors.Clone(appErrors.ErrValidation, "drop needs RFC3339 start and end"))
			return
		}
		result, err := view.Drop(ctx, start, end)
		if err != nil {
			sock.sendError(err)
			return
		}
		sock.send(dto.FrameReschedule, result)
	case dto.FrameHeartbeat:
		// heartbeat
	default:
		sock.sendError(appErrors.Clone(appErrors.ErrValidation, "unknown frame type"))
	}
}
