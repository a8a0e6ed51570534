package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/dto"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 50 * time.Second
	maxFrameSize = 8 << 10
	outboxSize   = 16
)

// newUpgrader accepts same-origin requests and the configured origins. An
// empty list or "*" accepts any origin.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// socket owns the write side of one websocket. Frames are written by a
// single goroutine in the order they were queued.
type socket struct {
	conn   *websocket.Conn
	out    chan dto.ServerFrame
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newSocket(conn *websocket.Conn, logger *zap.Logger) *socket {
	return &socket{
		conn:   conn,
		out:    make(chan dto.ServerFrame, outboxSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// send queues a frame. It reports false once the socket has closed.
func (s *socket) send(frameType string, data interface{}) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- dto.ServerFrame{Type: frameType, Data: data}:
		return true
	case <-s.done:
		return false
	}
}

func (s *socket) sendError(err error) {
	s.send(dto.FrameError, appErrors.FromError(err))
}

func (s *socket) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *socket) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Debug("socket write failed", zap.Error(err))
				s.close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.close()
				return
			}
		}
	}
}

// readLoop hands every client frame to handle until the peer goes away.
// Undecodable frames are answered with an error frame.
func (s *socket) readLoop(handle func(dto.ClientFrame)) {
	defer s.close()
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if closeErr.Code != websocket.CloseNormalClosure && closeErr.Code != websocket.CloseGoingAway {
					s.logger.Debug("socket closed", zap.Error(err))
				}
			} else {
				s.logger.Debug("socket read failed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame dto.ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.sendError(appErrors.Clone(appErrors.ErrValidation, "malformed frame"))
			continue
		}
		handle(frame)
	}
}
