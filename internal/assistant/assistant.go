package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Persona is the assistant's name as it appears in rendered transcripts.
const Persona = "Clara"

// SystemPrompt is used by providers that take a separate system message.
const SystemPrompt = "You are Clara, a friendly assistant at Nestzone."

// Role marks who said a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "clara"
)

// Turn is one line of the conversation handed to the text generator.
type Turn struct {
	Role Role   `json:"sender"`
	Text string `json:"text"`
}

// Responder produces the next assistant line for a transcript.
type Responder interface {
	Reply(ctx context.Context, turns []Turn) (string, error)
}

// ErrUnavailable is returned by the placeholder responder used when no
// provider could be configured.
var ErrUnavailable = errors.New("assistant: no text generation provider configured")

type unavailable struct{ reason string }

// Unavailable returns a Responder that always fails with ErrUnavailable.
func Unavailable(reason string) Responder { return unavailable{reason: reason} }

func (u unavailable) Reply(context.Context, []Turn) (string, error) {
	if u.reason == "" {
		return "", ErrUnavailable
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, u.reason)
}

// RenderTranscript flattens turns into a single prompt of the form
// "User: ...\nClara: ...\nClara:" so the model continues as Clara.
func RenderTranscript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role == RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString(Persona + ": ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString(Persona + ":")
	return b.String()
}
