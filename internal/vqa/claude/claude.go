// Package claude answers visual questions with Claude's vision input. It has
// no accelerated mode; the model runs remotely.
package claude

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/vettriage/internal/vqa"
)

const (
	maxAnswerTokens = 16

	systemPrompt = `You answer questions about a photo of an animal for a veterinary triage tool.
Reply with a single word or a very short phrase, like a visual question answering model.
Prefer "yes" or "no" for yes/no questions. Do not explain.`
)

// Backend implements vqa.Backend using the Anthropic Messages API.
type Backend struct {
	apiKey string
	model  string
	opts   []option.RequestOption
}

// New creates a backend. Extra request options are appended to the client
// options, which lets tests point the client at a local server.
func New(apiKey, model string, opts ...option.RequestOption) *Backend {
	return &Backend{apiKey: apiKey, model: model, opts: opts}
}

// Name implements vqa.Backend.
func (b *Backend) Name() string { return "claude" }

// ModelName implements vqa.ModelNamer.
func (b *Backend) ModelName() string { return b.model }

// Accelerated implements vqa.Backend. Remote inference has no local device.
func (b *Backend) Accelerated(context.Context) bool { return false }

// Load implements vqa.Backend.
func (b *Backend) Load(_ context.Context, _ vqa.Mode) (vqa.Model, error) {
	if b.apiKey == "" {
		return nil, errors.New("claude: api key is required")
	}
	if b.model == "" {
		return nil, errors.New("claude: model is required")
	}
	opts := append([]option.RequestOption{option.WithAPIKey(b.apiKey)}, b.opts...)
	return &model{client: anthropic.NewClient(opts...), name: b.model}, nil
}

type model struct {
	client anthropic.Client
	name   string
}

// Answer implements vqa.Model.
func (m *model) Answer(ctx context.Context, img image.Image, question string) (string, float64, error) {
	encoded, err := vqa.EncodePNGBase64(img)
	if err != nil {
		return "", 0, err
	}

	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		MaxTokens: maxAnswerTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", encoded),
				anthropic.NewTextBlock(question),
			),
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("claude: messages: %w", err)
	}

	return extractAnswer(resp.Content), 1, nil
}

func extractAnswer(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimRight(strings.TrimSpace(sb.String()), ".!")
}
