package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"nestzone-clara-backend/internal/dialogue"
	"nestzone-clara-backend/internal/speech"
	"nestzone-clara-backend/internal/types"
)

const (
	chatTimeout  = 60 * time.Second
	voiceTimeout = 180 * time.Second
)

// GET /api/session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionFor(w, r, "")
	snap, _ := s.store.Snapshot(sid)
	resp := types.SessionResponse{
		SessionID:  sid,
		Messages:   snap.Messages,
		Mode:       snap.Mode,
		Form:       snap.Form,
		Properties: snap.Properties,
		Account:    snap.Account,
		Roles:      s.script.Roles,
	}
	if f, ok := snap.CurrentField(s.script); ok {
		resp.Field = f.Key
	}
	writeJSON(w, http.StatusOK, resp)
}

// DELETE /api/session
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if sid := getSessionID(r); sid != "" {
		s.store.Delete(sid)
		s.log.Debug("session reset", zap.String("session", sid))
	}
	ClearSessionCookie(w, s.cfg.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/roles
func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"roles": s.script.Roles})
}

// POST /api/chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sid := s.sessionFor(w, r, req.SessionID)
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	out, err := s.turn(sid, func(st *dialogue.State) (dialogue.Outcome, error) {
		return s.engine.Handle(ctx, st, req.Message), nil
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	s.log.Debug("chat turn", zap.String("session", sid), zap.String("outcome", string(out.Kind)))
	writeJSON(w, http.StatusOK, s.chatResponse(sid, out, ""))
}

// POST /api/voice (multipart, field "file")
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	sid := s.sessionFor(w, r, r.FormValue("sessionId"))
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "audio file is required (field 'file')")
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), voiceTimeout)
	defer cancel()

	transcript, err := s.transcriber.Transcribe(ctx, file, header.Filename)
	if errors.Is(err, speech.ErrDisabled) {
		s.writeError(w, http.StatusServiceUnavailable, "voice transcription is not configured")
		return
	}
	var out dialogue.Outcome
	if err != nil {
		s.log.Warn("transcription failed", zap.String("session", sid), zap.Error(err))
		out, err = s.turn(sid, func(st *dialogue.State) (dialogue.Outcome, error) {
			return s.engine.CaptureFailed(st), nil
		})
	} else {
		out, err = s.turn(sid, func(st *dialogue.State) (dialogue.Outcome, error) {
			return s.engine.Handle(ctx, st, transcript), nil
		})
	}
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chatResponse(sid, out, transcript))
}

// POST /api/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionFor(w, r, "")
	out, err := s.turn(sid, func(st *dialogue.State) (dialogue.Outcome, error) {
		return s.engine.Cancel(st), nil
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chatResponse(sid, out, ""))
}

// POST /api/capture-failed is called when speech capture failed in the
// browser before any audio reached the server.
func (s *Server) handleCaptureFailed(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionFor(w, r, "")
	out, err := s.turn(sid, func(st *dialogue.State) (dialogue.Outcome, error) {
		return s.engine.CaptureFailed(st), nil
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chatResponse(sid, out, ""))
}

// POST /api/ai/reply answers an arbitrary transcript without touching any
// session.
func (s *Server) handleAIReply(w http.ResponseWriter, r *http.Request) {
	var req types.AIReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages are required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	reply, err := s.responder.Reply(ctx, req.Messages)
	if err != nil {
		s.log.Error("ai reply failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "Something went wrong while processing your request.")
		return
	}
	text := dialogue.StripSelfIntro(reply)
	if text == "" {
		text = s.script.Replies.HereToHelp
	}
	writeJSON(w, http.StatusOK, types.AIReplyResponse{Reply: text})
}
