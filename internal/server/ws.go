package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nestzone-clara-backend/internal/dialogue"
	"nestzone-clara-backend/internal/store"
	"nestzone-clara-backend/internal/types"
)

const wsReadLimit = 64 << 10

// GET /api/ws upgrades to a WebSocket carrying the same turns as /api/chat.
// Frames on one connection are handled in order.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sid, created := s.store.Ensure(getSessionID(r))
	header := http.Header{}
	header.Set("X-Session-Id", sid)
	header.Add("Set-Cookie", newSessionCookie(sid, s.cfg.CookieSecure, s.cfg.SessionTTL).String())

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	log := s.log.With(zap.String("session", sid))
	log.Debug("websocket connected", zap.Bool("new_session", created))
	for {
		var frame types.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if err := conn.WriteJSON(s.wsTurn(r.Context(), sid, frame)); err != nil {
			log.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) wsTurn(ctx context.Context, sid string, frame types.ClientFrame) types.ServerFrame {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	var fn func(st *dialogue.State) (dialogue.Outcome, error)
	switch frame.Type {
	case types.FrameText:
		if strings.TrimSpace(frame.Text) == "" {
			return types.ServerFrame{Type: types.FrameError, Error: "text is required"}
		}
		fn = func(st *dialogue.State) (dialogue.Outcome, error) {
			return s.engine.Handle(ctx, st, frame.Text), nil
		}
	case types.FrameCancel:
		fn = func(st *dialogue.State) (dialogue.Outcome, error) { return s.engine.Cancel(st), nil }
	case types.FrameCaptureFailed:
		fn = func(st *dialogue.State) (dialogue.Outcome, error) { return s.engine.CaptureFailed(st), nil }
	default:
		return types.ServerFrame{Type: types.FrameError, Error: "unknown frame type " + frame.Type}
	}

	out, err := s.turn(sid, fn)
	if errors.Is(err, store.ErrBusy) {
		return types.ServerFrame{Type: types.FrameError, Error: "Clara is still answering your previous message"}
	}
	if err != nil {
		s.log.Error("websocket turn failed", zap.Error(err))
		return types.ServerFrame{Type: types.FrameError, Error: "internal error"}
	}
	resp := s.chatResponse(sid, out, "")
	return types.ServerFrame{Type: types.FrameOutcome, Outcome: &resp}
}
