package types

import (
	"nestzone-clara-backend/internal/assistant"
	"nestzone-clara-backend/internal/dialogue"
	"nestzone-clara-backend/internal/nestzone"
)

type ChatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is one turn's outcome. Reply is the last line Clara said;
// Messages holds every line added during the turn, in order.
type ChatResponse struct {
	SessionID  string              `json:"sessionId"`
	Reply      string              `json:"reply"`
	Transcript string              `json:"transcript,omitempty"`
	Messages   []dialogue.Message  `json:"messages"`
	Intent     *IntentResponse     `json:"intent,omitempty"`
	Listen     bool                `json:"listen"`
	Field      string              `json:"field,omitempty"`
	Form       *dialogue.Form      `json:"form,omitempty"`
	Properties []nestzone.Property `json:"properties,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// IntentResponse allows the backend to indicate a structured action/content
// for the frontend to display.
type IntentResponse struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SessionResponse is the page's view of a conversation when it (re)loads.
type SessionResponse struct {
	SessionID  string              `json:"sessionId"`
	Messages   []dialogue.Message  `json:"messages"`
	Mode       dialogue.Mode       `json:"mode"`
	Field      string              `json:"field,omitempty"`
	Form       *dialogue.Form      `json:"form,omitempty"`
	Properties []nestzone.Property `json:"properties,omitempty"`
	Account    *dialogue.Account   `json:"account,omitempty"`
	Roles      []dialogue.Role     `json:"roles"`
}

type AIReplyRequest struct {
	Messages []assistant.Turn `json:"messages"`
}

type AIReplyResponse struct {
	Reply string `json:"reply"`
}

type TTSRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId,omitempty"`
}

// WebSocket frame types.
const (
	FrameText          = "text"
	FrameCancel        = "cancel"
	FrameCaptureFailed = "capture_failed"
	FrameOutcome       = "outcome"
	FrameError         = "error"
)

// ClientFrame is sent by the page over /api/ws.
type ClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerFrame answers a ClientFrame.
type ServerFrame struct {
	Type    string        `json:"type"`
	Outcome *ChatResponse `json:"outcome,omitempty"`
	Error   string        `json:"error,omitempty"`
}
