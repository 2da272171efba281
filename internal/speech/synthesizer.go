package speech

import (
	"context"
	"io"
	"strings"
)

// Voice is a selectable speaking voice.
type Voice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender,omitempty"`
}

// Synthesizer speaks text. The returned stream must be closed by the caller.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (audio io.ReadCloser, contentType string, err error)
	Voices(ctx context.Context) ([]Voice, error)
}

type disabledSynthesizer struct{}

// DisabledSynthesizer is used when TTS_PROVIDER is "none" or unusable; the
// page then falls back to the browser's own speech output.
func DisabledSynthesizer() Synthesizer { return disabledSynthesizer{} }

func (disabledSynthesizer) Synthesize(context.Context, string, string) (io.ReadCloser, string, error) {
	return nil, "", ErrDisabled
}

func (disabledSynthesizer) Voices(context.Context) ([]Voice, error) { return nil, ErrDisabled }

// PreferredVoice picks Clara's voice: Jenny, then Google UK English Female,
// then any female voice, then Microsoft Zira, else the first one.
func PreferredVoice(voices []Voice) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	rules := []func(Voice) bool{
		func(v Voice) bool { return strings.Contains(v.Name, "Jenny") },
		func(v Voice) bool { return strings.Contains(v.Name, "Google UK English Female") },
		func(v Voice) bool {
			return strings.Contains(strings.ToLower(v.Name), "female") || strings.EqualFold(v.Gender, "female")
		},
		func(v Voice) bool { return strings.Contains(v.Name, "Microsoft Zira") },
	}
	for _, match := range rules {
		for _, v := range voices {
			if match(v) {
				return v, true
			}
		}
	}
	return voices[0], true
}
