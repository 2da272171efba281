package assistant

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ChatCompleter is the part of the OpenAI client the responder uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIResponder maps turns onto chat roles behind the Clara system prompt.
type OpenAIResponder struct {
	client ChatCompleter
	model  string
	log    *zap.Logger
}

func NewOpenAIResponder(client ChatCompleter, model string, log *zap.Logger) *OpenAIResponder {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAIResponder{client: client, model: model, log: log}
}

func (o *OpenAIResponder) Reply(ctx context.Context, turns []Turn) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: convertTurns(turns),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	o.log.Debug("openai reply", zap.Int("turns", len(turns)), zap.Int("chars", len(reply)))
	return reply, nil
}

func convertTurns(turns []Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt})
	for _, t := range turns {
		role := openai.ChatMessageRoleAssistant
		if t.Role == RoleUser {
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	return out
}
