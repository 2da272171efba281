package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const elevenLabsAPI = "https://api.elevenlabs.io"

// ElevenLabs streams MP3 audio from the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	apiKey     string
	voiceID    string
	model      string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger

	mu          sync.Mutex
	chosenVoice string
}

func NewElevenLabs(apiKey, voiceID, model string, log *zap.Logger) *ElevenLabs {
	if log == nil {
		log = zap.NewNop()
	}
	return &ElevenLabs{
		apiKey:     apiKey,
		voiceID:    voiceID,
		model:      model,
		baseURL:    elevenLabsAPI,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

// WithBaseURL points the client at another host (tests, proxies).
func (e *ElevenLabs) WithBaseURL(u string) *ElevenLabs {
	e.baseURL = strings.TrimRight(u, "/")
	return e
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) (io.ReadCloser, string, error) {
	if e.apiKey == "" {
		return nil, "", ErrDisabled
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		v, err := e.defaultVoice(ctx)
		if err != nil {
			return nil, "", err
		}
		voiceID = v
	}
	payload := map[string]any{
		"text":     text,
		"model_id": e.model,
		"voice_settings": map[string]any{
			"stability":         0.5,
			"similarity_boost":  0.7,
			"style":             0.2,
			"use_speaker_boost": true,
		},
		"optimize_streaming_latency": 4,
		"output_format":              "mp3_44100_128",
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", e.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("tts request build failed: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("tts request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bb, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("elevenlabs tts: status %d: %s", resp.StatusCode, strings.TrimSpace(string(bb)))
	}
	return resp.Body, "audio/mpeg", nil
}

type elevenVoices struct {
	Voices []struct {
		VoiceID string            `json:"voice_id"`
		Name    string            `json:"name"`
		Labels  map[string]string `json:"labels"`
	} `json:"voices"`
}

func (e *ElevenLabs) Voices(ctx context.Context) ([]Voice, error) {
	if e.apiKey == "" {
		return nil, ErrDisabled
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("voices request build failed: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bb, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs voices: status %d: %s", resp.StatusCode, strings.TrimSpace(string(bb)))
	}
	var body elevenVoices
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs voices: decode: %w", err)
	}
	out := make([]Voice, 0, len(body.Voices))
	for _, v := range body.Voices {
		out = append(out, Voice{ID: v.VoiceID, Name: v.Name, Gender: v.Labels["gender"]})
	}
	return out, nil
}

// defaultVoice returns the configured voice, or the preferred voice from the
// account's list, looked up once.
func (e *ElevenLabs) defaultVoice(ctx context.Context) (string, error) {
	if e.voiceID != "" {
		return e.voiceID, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chosenVoice != "" {
		return e.chosenVoice, nil
	}
	voices, err := e.Voices(ctx)
	if err != nil {
		return "", err
	}
	v, ok := PreferredVoice(voices)
	if !ok {
		return "", fmt.Errorf("elevenlabs: no voices available")
	}
	e.log.Info("selected tts voice", zap.String("voice", v.Name), zap.String("id", v.ID))
	e.chosenVoice = v.ID
	return v.ID, nil
}
