package handler

import (
	"context"
	"errors"
	"strings"
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

const degradedNotice = "Live room updates were interrupted. Rejoin to see who is here."

type roomJoiner interface {
	Join(ctx context.Context, sessionID string, actor models.PresenceRecord, events service.RoomEvents) (*service.RoomSession, error)
}

// RoomHandler connects websockets to session rooms.
type RoomHandler struct {
	rooms    roomJoiner
	upgrader websocket.Upgrader
	logger   *zap.Logger
	now      func() time.Time
}

// NewRoomHandler constructs the handler.
func NewRoomHandler(rooms roomJoiner, allowedOrigins []string, logger *zap.Logger) *RoomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomHandler{rooms: rooms, upgrader: newUpgrader(allowedOrigins), logger: logger, now: time.Now}
}

// Live godoc
// @Summary Session room socket
// @Description Joins the session's presence and chat room. Server frames: presence_sync, chat, history, notice, error. Client frames: send, mute, unmute, h.
// @Tags Rooms
// @Param sessionId path string true "Session ID"
// @Param access_token query string false "Access token when no Authorization header can be sent"
// @Success 101 "Switching Protocols"
// @Router /rooms/{sessionId}/live [get]
func (h *RoomHandler) Live(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	if sessionID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session id is required"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("room upgrade failed", zap.Error(err))
		return
	}
	sock := newSocket(conn, h.logger)
	go sock.writeLoop()
	defer sock.close()

	ctx := c.Request.Context()
	actor := models.PresenceRecord{
		ActorID:     claims.Actor(),
		DisplayName: displayName(claims),
		JoinedAt:    h.now().UTC(),
	}
	session, err := h.rooms.Join(ctx, sessionID, actor, service.RoomEvents{
		OnPresence: func(p models.RoomPresence) { sock.send(dto.FramePresenceSync, p) },
		OnMessage:  func(m models.ChatMessage) { sock.send(dto.FrameChat, m) },
		OnHistory:  func(ms []models.ChatMessage) { sock.send(dto.FrameHistory, ms) },
		OnDegraded: func(error) { sock.send(dto.FrameNotice, dto.NoticeFrame{Message: degradedNotice}) },
	})
	if err != nil {
		sock.sendError(err)
		return
	}
	defer func() {
		if err := session.Leave(); err != nil {
			h.logger.Debug("room leave", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	sock.readLoop(func(frame dto.ClientFrame) {
		h.handleFrame(ctx, sock, session, frame)
	})
}

func (h *RoomHandler) handleFrame(ctx context.Context, sock *socket, session *service.RoomSession, frame dto.ClientFrame) {
	switch frame.Type {
	case dto.FrameSend:
		if _, err := session.Send(ctx, frame.Body); err != nil {
			if errors.Is(err, appErrors.ErrRateLimited) {
				sock.send(dto.FrameNotice, dto.NoticeFrame{Message: service.ThrottledNotice})
				return
			}
			sock.sendError(err)
		}
	case dto.FrameMute:
		if frame.SenderID == "" {
			session.SetMuted(true)
		} else {
			session.Mute(frame.SenderID)
		}
	case dto.FrameUnmute:
		if frame.SenderID == "" {
			session.SetMuted(false)
		} else {
			session.Unmute(frame.SenderID)
		}
	case dto.FrameHeartbeat:
		// heartbeat
	default:
		sock.sendError(appErrors.Clone(appErrors.ErrValidation, "unknown frame type"))
	}
}
