package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/w-h-a/therapist/generator"
)

const defaultModel = "claude-3-5-haiku-latest"

type anthropicGenerator struct {
	options generator.Options
	client  *anthropic.Client
}

func (g *anthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.options.Model),
		MaxTokens: int64(g.options.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	if len(g.options.SystemPrompt) > 0 {
		req.System = []anthropic.TextBlockParam{
			{Text: g.options.SystemPrompt},
		}
	}

	if g.options.Temperature != nil {
		req.Temperature = anthropic.Float(float64(*g.options.Temperature))
	}

	rsp, err := g.client.Messages.New(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}

	result := b.String()
	if len(result) == 0 {
		return "", errors.New("no response from Anthropic")
	}

	return result, nil
}

func NewGenerator(opts ...generator.Option) generator.Generator {
	options := generator.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	g := &anthropicGenerator{
		options: options,
	}

	client := anthropic.NewClient(
		anthropicopt.WithAPIKey(options.ApiKey),
	)

	g.client = &client

	return g
}
