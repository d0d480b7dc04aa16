package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"parley/internal/models"
)

// Service sends one completion request per turn to an OpenAI-compatible
// API. No streaming, no retries, no timeout beyond the transport default.
type Service struct {
	model llms.Model
}

func New(baseURL, token, model string) (*Service, error) {
	client, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &Service{model: client}, nil
}

// Complete performs the single upstream round trip and returns the
// reply's plain text.
func (s *Service) Complete(ctx context.Context, prompts []Prompt) (string, error) {
	messages := make([]llms.MessageContent, 0, len(prompts))
	for _, p := range prompts {
		messages = append(messages, toMessageContent(p))
	}

	resp, err := s.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}

	// Usually the reply arrives as the first choice's flat content; fall
	// back to concatenating the text of every choice.
	if text := resp.Choices[0].Content; text != "" {
		return text, nil
	}
	var b strings.Builder
	for _, choice := range resp.Choices {
		b.WriteString(choice.Content)
	}
	return b.String(), nil
}

func toMessageContent(p Prompt) llms.MessageContent {
	role := schema.ChatMessageTypeHuman
	if p.Role == models.RoleAssistant {
		role = schema.ChatMessageTypeAI
	}

	mc := llms.MessageContent{Role: role}
	for _, block := range p.Blocks {
		switch b := block.(type) {
		case TextBlock:
			mc.Parts = append(mc.Parts, llms.TextContent{Text: b.Text})
		case ImageBlock:
			mc.Parts = append(mc.Parts, llms.BinaryContent{MIMEType: b.MIMEType, Data: b.Data})
		case FileBlock:
			if b.Name != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: "Attached file: " + b.Name})
			}
			mc.Parts = append(mc.Parts, llms.BinaryContent{MIMEType: b.MIMEType, Data: b.Data})
		}
	}
	return mc
}
