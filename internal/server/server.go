package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"nestzone-clara-backend/internal/assistant"
	"nestzone-clara-backend/internal/config"
	"nestzone-clara-backend/internal/dialogue"
	"nestzone-clara-backend/internal/logging"
	"nestzone-clara-backend/internal/nestzone"
	"nestzone-clara-backend/internal/speech"
	"nestzone-clara-backend/internal/store"
	"nestzone-clara-backend/internal/types"
)

// Backend is the Nestzone API as used by the HTTP surface.
type Backend interface {
	dialogue.Backend
	UserInfo(ctx context.Context, token string) (*nestzone.UserInfo, error)
	GetProperty(ctx context.Context, token string, id nestzone.ID) (*nestzone.Property, error)
	BookmarkProperty(ctx context.Context, token string, b nestzone.Bookmark) (string, error)
	SearchUserProperties(ctx context.Context, token string, filter nestzone.PropertyFilter) ([]nestzone.Property, error)
	DeleteProperty(ctx context.Context, token string, id nestzone.ID) (string, error)
}

// Deps are the collaborators a Server talks to. Nil speech adapters and
// responder are replaced with disabled ones.
type Deps struct {
	Script      *dialogue.Script
	Backend     Backend
	Responder   assistant.Responder
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
}

type Server struct {
	router      *chi.Mux
	cfg         config.Config
	log         *zap.Logger
	store       *store.MemoryStore
	engine      *dialogue.Engine
	script      *dialogue.Script
	backend     Backend
	responder   assistant.Responder
	transcriber speech.Transcriber
	synth       speech.Synthesizer
	upgrader    websocket.Upgrader
	closers     []io.Closer
}

// NewServer wires the configured providers and builds the router.
func NewServer(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	deps, closers, err := BuildDeps(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	s := New(cfg, deps, log)
	s.closers = closers
	log.Info("server configured",
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("tts_provider", cfg.TTSProvider),
		zap.String("nestzone", cfg.NestzoneBaseURL()),
		zap.Int("cities", len(deps.Script.Cities)))
	return s, nil
}

// BuildDeps constructs the providers named by cfg. The closers must be
// closed once the deps are no longer used.
func BuildDeps(ctx context.Context, cfg config.Config, log *zap.Logger) (Deps, []io.Closer, error) {
	script, err := dialogue.LoadScript(cfg.ScriptPath)
	if err != nil {
		return Deps{}, nil, fmt.Errorf("failed to load dialogue script: %w", err)
	}
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	client := openai.NewClient(cfg.OpenAIAPIKey)
	deps := Deps{
		Script:      script,
		Backend:     nestzone.NewClient(cfg.NestzoneBaseURL(), cfg.NestzoneTimeout, log.Named("nestzone")),
		Transcriber: speech.DisabledTranscriber(),
	}
	deps.Responder, err = newResponder(ctx, cfg, client, log.Named("assistant"))
	if err != nil {
		return Deps{}, nil, err
	}
	if cfg.OpenAIAPIKey != "" {
		deps.Transcriber = speech.NewRetryingTranscriber(
			speech.NewWhisperTranscriber(client, cfg.STTModel),
			cfg.STTRetries, 500*time.Millisecond, log.Named("stt"))
	}

	var closers []io.Closer
	switch cfg.TTSProvider {
	case "google":
		g, err := speech.NewGoogleTTS(ctx, cfg.GoogleTTSLanguage, cfg.GoogleTTSVoice)
		if err != nil {
			return Deps{}, nil, fmt.Errorf("failed to initialize google tts: %w", err)
		}
		deps.Synthesizer = g
		closers = append(closers, g)
	case "none", "":
		deps.Synthesizer = speech.DisabledSynthesizer()
	case "elevenlabs":
		deps.Synthesizer = speech.NewElevenLabs(cfg.ElevenAPIKey, cfg.ElevenVoiceID, cfg.ElevenModel, log.Named("tts"))
	default:
		return Deps{}, nil, fmt.Errorf("unknown TTS_PROVIDER %q", cfg.TTSProvider)
	}
	return deps, closers, nil
}

func newResponder(ctx context.Context, cfg config.Config, client *openai.Client, log *zap.Logger) (assistant.Responder, error) {
	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return assistant.Unavailable("OPENAI_API_KEY not set"), nil
		}
		return assistant.NewOpenAIResponder(client, cfg.Model, log), nil
	case "gemini", "":
		if cfg.GeminiAPIKey == "" {
			return assistant.Unavailable("GEMINI_API_KEY not set"), nil
		}
		g, err := assistant.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini: %w", err)
		}
		return g, nil
	}
	return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.AIProvider)
}

// New builds a Server around already constructed collaborators.
func New(cfg config.Config, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Script == nil {
		deps.Script = dialogue.DefaultScript()
	}
	if deps.Responder == nil {
		deps.Responder = assistant.Unavailable("")
	}
	if deps.Transcriber == nil {
		deps.Transcriber = speech.DisabledTranscriber()
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = speech.DisabledSynthesizer()
	}
	engine := dialogue.NewEngine(deps.Script, deps.Backend, deps.Responder, log.Named("dialogue"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log.Named("http")))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router:      r,
		cfg:         cfg,
		log:         log,
		store:       store.NewMemoryStore(cfg.MaxMessages, cfg.SessionTTL, engine.NewState),
		engine:      engine,
		script:      deps.Script,
		backend:     deps.Backend,
		responder:   deps.Responder,
		transcriber: deps.Transcriber,
		synth:       deps.Synthesizer,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/session", s.handleSession)
	s.router.Delete("/api/session", s.handleResetSession)
	s.router.Get("/api/roles", s.handleRoles)
	// Conversation
	s.router.Post("/api/chat", s.handleChat)
	s.router.Post("/api/voice", s.handleVoice)
	s.router.Post("/api/cancel", s.handleCancel)
	s.router.Post("/api/capture-failed", s.handleCaptureFailed)
	s.router.Get("/api/ws", s.handleWS)
	// Forms and account
	s.router.Post("/api/register", s.handleRegister)
	s.router.Post("/api/login", s.handleLogin)
	s.router.Post("/api/logout", s.handleLogout)
	s.router.Get("/api/me", s.handleMe)
	s.router.Get("/api/properties/mine", s.handleMyProperties)
	s.router.Get("/api/properties/{id}", s.handleGetProperty)
	s.router.Delete("/api/properties/{id}", s.handleDeleteProperty)
	s.router.Post("/api/properties/bookmark", s.handleBookmark)
	// Providers
	s.router.Post("/api/ai/reply", s.handleAIReply)
	s.router.Post("/api/tts", s.handleTTS)
	s.router.Get("/api/tts/voices", s.handleTTSVoices)
}

func (s *Server) Router() http.Handler { return s.router }

// Store exposes the session registry so the caller can run its janitor.
func (s *Server) Store() *store.MemoryStore { return s.store }

// Close releases provider clients.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// turn runs fn on a working copy of the session state while holding the
// session's loading flag. The copy is committed only when fn succeeds.
func (s *Server) turn(sid string, fn func(st *dialogue.State) (dialogue.Outcome, error)) (dialogue.Outcome, error) {
	st, err := s.store.Begin(sid)
	if err != nil {
		return dialogue.Outcome{}, err
	}
	var keep *dialogue.State
	defer func() { s.store.End(sid, keep) }()
	out, err := fn(st)
	if err == nil {
		keep = st
	}
	return out, err
}

func (s *Server) chatResponse(sid string, out dialogue.Outcome, transcript string) types.ChatResponse {
	resp := types.ChatResponse{
		SessionID:  sid,
		Transcript: transcript,
		Messages:   out.Messages,
		Intent:     intentFor(out),
		Listen:     out.Listen,
		Field:      out.Field,
		Form:       out.Form,
		Properties: out.Properties,
	}
	for i := len(out.Messages) - 1; i >= 0; i-- {
		if out.Messages[i].Sender == dialogue.SenderClara {
			resp.Reply = out.Messages[i].Text
			break
		}
	}
	return resp
}

func intentFor(out dialogue.Outcome) *types.IntentResponse {
	if out.Kind == "" {
		return nil
	}
	in := &types.IntentResponse{Type: string(out.Kind)}
	switch {
	case out.Form != nil:
		in.Payload = map[string]any{"form": out.Form.Type}
	case len(out.Properties) > 0:
		in.Payload = map[string]any{"count": len(out.Properties)}
	case out.Field != "":
		in.Payload = map[string]any{"field": out.Field}
	}
	return in
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, types.ErrorResponse{Error: msg})
}

// writeTurnError maps errors from a conversation turn onto status codes.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	var verr *dialogue.ValidationError
	switch {
	case errors.Is(err, store.ErrBusy):
		s.writeError(w, http.StatusConflict, "Clara is still answering your previous message")
	case errors.Is(err, store.ErrInvalidID):
		s.writeError(w, http.StatusBadRequest, "invalid session id")
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, types.ErrorResponse{Error: verr.Message, Field: verr.Field})
	default:
		s.log.Error("turn failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeBackendError passes the backend's client errors through and reports
// everything else as a bad gateway.
func (s *Server) writeBackendError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *nestzone.APIError
	switch {
	case errors.Is(err, nestzone.ErrNotConfigured):
		s.writeError(w, http.StatusServiceUnavailable, "property service is not configured")
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		msg := apiErr.Message
		if msg == "" {
			msg = fallback
		}
		s.writeError(w, apiErr.Status, msg)
	default:
		s.log.Warn("backend call failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, fallback)
	}
}

// getSessionID retrieves the session ID from cookie, header or query parameter.
func getSessionID(r *http.Request) string {
	if cookie, err := GetSessionCookie(r); err == nil && cookie != "" {
		return cookie
	}
	if sid := r.Header.Get("X-Session-Id"); sid != "" {
		return sid
	}
	if sid := r.URL.Query().Get("sessionId"); sid != "" {
		return sid
	}
	return ""
}

// sessionFor resolves the request's session, creating one when needed, and
// refreshes the cookie. hint is a session id sent in the request body.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request, hint string) string {
	sid := getSessionID(r)
	if sid == "" {
		sid = strings.TrimSpace(hint)
	}
	sid, created := s.store.Ensure(sid)
	if created {
		s.log.Debug("session created", zap.String("session", logging.Redact(sid)), zap.String("path", r.URL.Path))
	} else {
		s.log.Debug("session reused", zap.String("session", logging.Redact(sid)), zap.String("path", r.URL.Path))
	}
	SetSessionCookie(w, sid, s.cfg.CookieSecure, s.cfg.SessionTTL)
	w.Header().Set("X-Session-Id", sid)
	return sid
}
