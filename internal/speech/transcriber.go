package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrEmptyTranscript means the audio produced no words.
	ErrEmptyTranscript = errors.New("speech: empty transcription")
	// ErrDisabled is returned by adapters whose provider is not configured.
	ErrDisabled = errors.New("speech: provider not configured")
)

// Transcriber turns an uploaded audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// AudioClient is the part of the OpenAI client used for speech-to-text.
type AudioClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type WhisperTranscriber struct {
	client AudioClient
	model  string
}

func NewWhisperTranscriber(client AudioClient, model string) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if filename == "" {
		filename = "speech.webm"
	}
	tr, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Reader:   audio,
		FilePath: filename,
		Language: "en",
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

type disabledTranscriber struct{}

// DisabledTranscriber rejects every clip with ErrDisabled.
func DisabledTranscriber() Transcriber { return disabledTranscriber{} }

func (disabledTranscriber) Transcribe(context.Context, io.Reader, string) (string, error) {
	return "", ErrDisabled
}

// RetryingTranscriber re-submits a clip when transcription fails or comes
// back empty. The clip is buffered once so every attempt sends the same bytes.
type RetryingTranscriber struct {
	next    Transcriber
	retries int
	delay   time.Duration
	log     *zap.Logger
}

func NewRetryingTranscriber(next Transcriber, retries int, delay time.Duration, log *zap.Logger) *RetryingTranscriber {
	if retries < 0 {
		retries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingTranscriber{next: next, retries: retries, delay: delay, log: log}
}

func (r *RetryingTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	clip, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(clip) == 0 {
		return "", ErrEmptyTranscript
	}
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * r.delay):
			}
		}
		text, err := r.next.Transcribe(ctx, bytes.NewReader(clip), filename)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, ErrDisabled) || ctx.Err() != nil {
			break
		}
		r.log.Warn("transcription attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("of", r.retries+1),
			zap.Error(err))
	}
	return "", lastErr
}
