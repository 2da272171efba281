package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestzone-clara-backend/internal/assistant"
	"nestzone-clara-backend/internal/config"
	"nestzone-clara-backend/internal/nestzone"
	"nestzone-clara-backend/internal/speech"
	"nestzone-clara-backend/internal/types"
)

type fakeBackend struct {
	locs  []nestzone.Location
	props []nestzone.Property

	loginResp *nestzone.AuthResponse
	info      *nestzone.UserInfo
	infoToken string

	property    *nestzone.Property
	propertyErr error
	bookmarked  nestzone.Bookmark

	mine       []nestzone.Property
	mineFilter nestzone.PropertyFilter
	deleted    nestzone.ID
}

func (f *fakeBackend) SearchLocations(context.Context, string) ([]nestzone.Location, error) {
	return f.locs, nil
}

func (f *fakeBackend) SearchProperties(context.Context, nestzone.PropertyFilter) ([]nestzone.Property, error) {
	return f.props, nil
}

func (f *fakeBackend) Register(context.Context, nestzone.Registration) (*nestzone.AuthResponse, error) {
	return &nestzone.AuthResponse{Message: "Welcome aboard"}, nil
}

func (f *fakeBackend) Login(context.Context, string, string) (*nestzone.AuthResponse, error) {
	return f.loginResp, nil
}

func (f *fakeBackend) Logout(context.Context, string) (*nestzone.AuthResponse, error) {
	return &nestzone.AuthResponse{}, nil
}

func (f *fakeBackend) UserInfo(_ context.Context, token string) (*nestzone.UserInfo, error) {
	f.infoToken = token
	return f.info, nil
}

func (f *fakeBackend) GetProperty(context.Context, string, nestzone.ID) (*nestzone.Property, error) {
	return f.property, f.propertyErr
}

func (f *fakeBackend) BookmarkProperty(_ context.Context, _ string, b nestzone.Bookmark) (string, error) {
	f.bookmarked = b
	return "Bookmarked", nil
}

func (f *fakeBackend) SearchUserProperties(_ context.Context, _ string, filter nestzone.PropertyFilter) ([]nestzone.Property, error) {
	f.mineFilter = filter
	return f.mine, nil
}

func (f *fakeBackend) DeleteProperty(_ context.Context, _ string, id nestzone.ID) (string, error) {
	f.deleted = id
	return "Deleted", nil
}

type fakeResponder struct {
	reply string
	err   error
}

func (f *fakeResponder) Reply(context.Context, []assistant.Turn) (string, error) {
	return f.reply, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio io.Reader, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, audio)
	return f.text, f.err
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(context.Context, string, string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("ID3")), "audio/mpeg", nil
}

func (fakeSynth) Voices(context.Context) ([]speech.Voice, error) {
	return []speech.Voice{{ID: "a", Name: "Adam"}, {ID: "j", Name: "Jenny"}}, nil
}

type testEnv struct {
	srv *Server
	b   *fakeBackend
	r   *fakeResponder
	tr  *fakeTranscriber
}

func newTestEnv(synth speech.Synthesizer) *testEnv {
	e := &testEnv{
		b: &fakeBackend{
			loginResp: &nestzone.AuthResponse{Token: "tok"},
			info:      &nestzone.UserInfo{FirstName: "Ana", Email: "ana@x.com"},
		},
		r:  &fakeResponder{reply: "I'm Clara. Happy to help."},
		tr: &fakeTranscriber{},
	}
	cfg := config.Config{AllowedOrigins: []string{"*"}, MaxMessages: 40, SessionTTL: time.Minute}
	e.srv = New(cfg, Deps{Backend: e.b, Responder: e.r, Transcriber: e.tr, Synthesizer: synth}, nil)
	return e
}

func (e *testEnv) do(t *testing.T, method, path, sid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if sid != "" {
		req.Header.Set("X-Session-Id", sid)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rec := newTestEnv(nil).do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionStartsWithGreeting(t *testing.T) {
	rec := newTestEnv(nil).do(t, http.MethodGet, "/api/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.SessionResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.SessionID, "s_"))
	assert.Equal(t, resp.SessionID, rec.Header().Get("X-Session-Id"))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "Hello, welcome to Nestzone, how can I assist you?", resp.Messages[0].Text)
	assert.Len(t, resp.Roles, 8)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, resp.SessionID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestResetSession(t *testing.T) {
	e := newTestEnv(nil)
	sid, _ := e.srv.store.Ensure("")
	rec := e.do(t, http.MethodDelete, "/api/session", sid, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := e.srv.store.Snapshot(sid)
	assert.False(t, ok)
}

func TestChatRegistrationFlow(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/api/chat", "", types.ChatRequest{Message: "I want to register"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.ChatResponse](t, rec)
	assert.True(t, resp.Listen)
	assert.Equal(t, "firstName", resp.Field)
	assert.Equal(t, "What is your first name?", resp.Reply)
	require.NotNil(t, resp.Intent)
	assert.Equal(t, "registration_started", resp.Intent.Type)
	assert.Len(t, resp.Messages, 2)

	rec = e.do(t, http.MethodPost, "/api/chat", resp.SessionID, types.ChatRequest{Message: "Ana"})
	resp = decode[types.ChatResponse](t, rec)
	assert.Equal(t, "lastName", resp.Field)

	rec = e.do(t, http.MethodGet, "/api/session", resp.SessionID, nil)
	snap := decode[types.SessionResponse](t, rec)
	assert.Equal(t, "registration", string(snap.Mode))
	assert.Equal(t, "lastName", snap.Field)
}

func TestChatFallbackReply(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "What should I look for?"})
	resp := decode[types.ChatResponse](t, rec)
	assert.Equal(t, "Happy to help.", resp.Reply)
	assert.Equal(t, "reply", resp.Intent.Type)
}

func TestChatValidation(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/api/chat", "", types.ChatRequest{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", decode[types.ErrorResponse](t, rec).Error)
}

func TestChatWhileBusy(t *testing.T) {
	e := newTestEnv(nil)
	sid, _ := e.srv.store.Ensure("")
	st, err := e.srv.store.Begin(sid)
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/api/chat", sid, types.ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	e.srv.store.End(sid, st)
	rec = e.do(t, http.MethodPost, "/api/chat", sid, types.ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func voiceRequest(t *testing.T, sid string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.webm")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("opus"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if sid != "" {
		req.Header.Set("X-Session-Id", sid)
	}
	return req
}

func TestVoice(t *testing.T) {
	e := newTestEnv(nil)
	e.tr.text = "log in"

	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, voiceRequest(t, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.ChatResponse](t, rec)
	assert.Equal(t, "log in", resp.Transcript)
	assert.Equal(t, "username", resp.Field)
	assert.Equal(t, "Please say your email address.", resp.Reply)

	e.tr.err = speech.ErrEmptyTranscript
	rec = httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, voiceRequest(t, resp.SessionID))
	resp = decode[types.ChatResponse](t, rec)
	assert.Equal(t, "capture_failed", resp.Intent.Type)
	assert.True(t, resp.Listen)
	assert.Equal(t, "username", resp.Field)
	assert.Equal(t, "Sorry, I didn't catch that. Please try again.", resp.Reply)

	e.tr.err = speech.ErrDisabled
	rec = httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, voiceRequest(t, resp.SessionID))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/voice", strings.NewReader("nope"))
	rec = httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndCaptureFailed(t *testing.T) {
	e := newTestEnv(nil)
	resp := decode[types.ChatResponse](t, e.do(t, http.MethodPost, "/api/chat", "", types.ChatRequest{Message: "register"}))

	resp = decode[types.ChatResponse](t, e.do(t, http.MethodPost, "/api/capture-failed", resp.SessionID, nil))
	assert.True(t, resp.Listen)
	assert.Equal(t, "firstName", resp.Field)

	resp = decode[types.ChatResponse](t, e.do(t, http.MethodPost, "/api/cancel", resp.SessionID, nil))
	assert.Equal(t, "Cancelled. How else can I help you?", resp.Reply)
	assert.False(t, resp.Listen)
}

func TestRegisterValidationError(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/api/register", "", map[string]any{"pass": "x", "retypedPass": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decode[types.ErrorResponse](t, rec)
	assert.Equal(t, "firstName", errResp.Field)

	rec = e.do(t, http.MethodPost, "/api/register", "", map[string]any{
		"firstName": "Ana", "lastName": "Lopez", "email": "ana@x.com", "mobile": "600 123 4567",
		"pass": "x", "retypedPass": "x", "roleType": "PRIVATE_SELLER", "confirmedTermsAndConditions": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.ChatResponse](t, rec)
	assert.Equal(t, "Welcome aboard", resp.Reply)
	assert.Equal(t, "registered", resp.Intent.Type)
}

func TestAccountRoutes(t *testing.T) {
	e := newTestEnv(nil)
	sid, _ := e.srv.store.Ensure("")

	rec := e.do(t, http.MethodGet, "/api/me", sid, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/login", sid, map[string]string{"username": "ana@x.com", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.ChatResponse](t, rec)
	assert.Equal(t, "logged_in", resp.Intent.Type)
	assert.Equal(t, "What else can I do for you?", resp.Reply)

	rec = e.do(t, http.MethodGet, "/api/me", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ana@x.com"`)
	assert.NotContains(t, rec.Body.String(), "tok")
	assert.Equal(t, "tok", e.b.infoToken)

	rec = e.do(t, http.MethodPost, "/api/properties/bookmark", sid, map[string]any{"propertyId": 12})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, nestzone.ID("12"), e.b.bookmarked.PropertyID)
	assert.JSONEq(t, `{"message":"Bookmarked"}`, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/logout", sid, nil)
	assert.Equal(t, "logged_out", decode[types.ChatResponse](t, rec).Intent.Type)

	rec = e.do(t, http.MethodPost, "/api/properties/bookmark", sid, map[string]any{"propertyId": 12})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidationError(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "ana@x.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decode[types.ErrorResponse](t, rec)
	assert.Equal(t, "password", errResp.Field)
	assert.Equal(t, "Please enter your password.", errResp.Error)
}

func TestOwnPropertyRoutes(t *testing.T) {
	e := newTestEnv(nil)
	sid, _ := e.srv.store.Ensure("")

	rec := e.do(t, http.MethodGet, "/api/properties/mine", sid, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = e.do(t, http.MethodDelete, "/api/properties/9", sid, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/login", sid, map[string]string{"username": "ana@x.com", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/properties/mine?type=flat", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"properties":[]}`, rec.Body.String())
	assert.Equal(t, "flat", e.b.mineFilter.Type)

	e.b.mine = []nestzone.Property{{ID: "9", Type: "flat", City: "Bilbao"}}
	rec = e.do(t, http.MethodGet, "/api/properties/mine", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"city":"Bilbao"`)

	rec = e.do(t, http.MethodDelete, "/api/properties/9", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, nestzone.ID("9"), e.b.deleted)
	assert.JSONEq(t, `{"message":"Deleted"}`, rec.Body.String())
}

func TestGetProperty(t *testing.T) {
	e := newTestEnv(nil)
	e.b.property = &nestzone.Property{ID: "5", Type: "villa", City: "Malaga", Province: "Andalusia", ImageURLs: []string{"https://img/5.jpg"}}
	rec := e.do(t, http.MethodGet, "/api/properties/5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Villa in Malaga, Andalusia"`)
	assert.Contains(t, rec.Body.String(), `"image":"https://img/5.jpg"`)

	e.b.property = nil
	e.b.propertyErr = &nestzone.APIError{Status: http.StatusNotFound, Path: "/properties/getOne", Message: "Property not found"}
	rec = e.do(t, http.MethodGet, "/api/properties/6", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Property not found", decode[types.ErrorResponse](t, rec).Error)

	e.b.propertyErr = errors.New("dial tcp: refused")
	rec = e.do(t, http.MethodGet, "/api/properties/6", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAIReply(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/api/ai/reply", "", types.AIReplyRequest{
		Messages: []assistant.Turn{{Role: assistant.RoleUser, Text: "hi"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Happy to help.", decode[types.AIReplyResponse](t, rec).Reply)

	rec = e.do(t, http.MethodPost, "/api/ai/reply", "", types.AIReplyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e.r.err = errors.New("quota")
	rec = e.do(t, http.MethodPost, "/api/ai/reply", "", types.AIReplyRequest{
		Messages: []assistant.Turn{{Role: assistant.RoleUser, Text: "hi"}},
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTTS(t *testing.T) {
	e := newTestEnv(fakeSynth{})
	rec := e.do(t, http.MethodPost, "/api/tts", "", types.TTSRequest{Text: "Hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ID3", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/tts/voices", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"preferred":"j"`)

	rec = e.do(t, http.MethodPost, "/api/tts", "", types.TTSRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	disabled := newTestEnv(nil)
	rec = disabled.do(t, http.MethodPost, "/api/tts", "", types.TTSRequest{Text: "Hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebSocketTurns(t *testing.T) {
	e := newTestEnv(nil)
	ts := httptest.NewServer(e.srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	sid := resp.Header.Get("X-Session-Id")
	assert.True(t, strings.HasPrefix(sid, "s_"))

	var frame types.ServerFrame
	require.NoError(t, conn.WriteJSON(types.ClientFrame{Type: types.FrameText, Text: "register"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, types.FrameOutcome, frame.Type)
	require.NotNil(t, frame.Outcome)
	assert.Equal(t, "firstName", frame.Outcome.Field)
	assert.Equal(t, sid, frame.Outcome.SessionID)

	frame = types.ServerFrame{}
	require.NoError(t, conn.WriteJSON(types.ClientFrame{Type: types.FrameCancel}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "cancelled", frame.Outcome.Intent.Type)

	frame = types.ServerFrame{}
	require.NoError(t, conn.WriteJSON(types.ClientFrame{Type: "shout"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, types.FrameError, frame.Type)
	assert.Contains(t, frame.Error, "shout")

	snap, ok := e.srv.store.Snapshot(sid)
	require.True(t, ok)
	assert.Equal(t, "Cancelled. How else can I help you?", snap.Messages[len(snap.Messages)-1].Text)
}
