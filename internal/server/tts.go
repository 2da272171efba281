package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"nestzone-clara-backend/internal/speech"
	"nestzone-clara-backend/internal/types"
)

const ttsTimeout = 60 * time.Second

// POST /api/tts {text, voiceId?} -> audio
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var body types.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid text body")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ttsTimeout)
	defer cancel()
	audio, contentType, err := s.synth.Synthesize(ctx, body.Text, body.VoiceID)
	if errors.Is(err, speech.ErrDisabled) {
		s.writeError(w, http.StatusServiceUnavailable, "speech output is not configured")
		return
	}
	if err != nil {
		s.log.Warn("tts failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "tts error")
		return
	}
	defer audio.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, audio)
}

// GET /api/tts/voices -> {voices: [...], preferred: id}
func (s *Server) handleTTSVoices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ttsTimeout)
	defer cancel()
	voices, err := s.synth.Voices(ctx)
	if errors.Is(err, speech.ErrDisabled) {
		s.writeError(w, http.StatusServiceUnavailable, "speech output is not configured")
		return
	}
	if err != nil {
		s.log.Warn("tts voices failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "voices error")
		return
	}
	resp := map[string]any{"voices": voices}
	if v, ok := speech.PreferredVoice(voices); ok {
		resp["preferred"] = v.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
