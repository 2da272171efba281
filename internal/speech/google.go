package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// GoogleTTS synthesises MP3 audio with Google Cloud Text-to-Speech using
// application default credentials.
type GoogleTTS struct {
	client   *texttospeech.Client
	language string
	voice    string
}

func NewGoogleTTS(ctx context.Context, language, voice string) (*GoogleTTS, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("texttospeech.NewClient: %w", err)
	}
	if language == "" {
		language = "en-US"
	}
	return &GoogleTTS{client: client, language: language, voice: voice}, nil
}

func (g *GoogleTTS) Synthesize(ctx context.Context, text, voiceID string) (io.ReadCloser, string, error) {
	name := strings.TrimSpace(voiceID)
	if name == "" {
		name = g.voice
	}
	req := texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         name,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_FEMALE,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}
	resp, err := g.client.SynthesizeSpeech(ctx, &req)
	if err != nil {
		return nil, "", fmt.Errorf("SynthesizeSpeech: %w", err)
	}
	return io.NopCloser(bytes.NewReader(resp.AudioContent)), "audio/mpeg", nil
}

func (g *GoogleTTS) Voices(ctx context.Context) ([]Voice, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: g.language})
	if err != nil {
		return nil, fmt.Errorf("ListVoices: %w", err)
	}
	out := make([]Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		out = append(out, Voice{
			ID:     v.Name,
			Name:   v.Name,
			Gender: strings.ToLower(v.SsmlGender.String()),
		})
	}
	return out, nil
}

func (g *GoogleTTS) Close() error { return g.client.Close() }
