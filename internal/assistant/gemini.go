package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiResponder sends the rendered transcript to Gemini as a single user
// part.
type GeminiResponder struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

func NewGeminiResponder(ctx context.Context, apiKey, model string, log *zap.Logger) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GeminiResponder{client: client, model: model, log: log}, nil
}

func (g *GeminiResponder) Reply(ctx context.Context, turns []Turn) (string, error) {
	prompt := RenderTranscript(turns)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	reply := strings.TrimSpace(resp.Text())
	g.log.Debug("gemini reply", zap.Int("turns", len(turns)), zap.Int("chars", len(reply)))
	return reply, nil
}
