package google

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/w-h-a/therapist/generator"
	genaiopt "google.golang.org/api/option"
)

const defaultModel = "gemini-1.5-flash"

type googleGenerator struct {
	options generator.Options
	client  *genai.Client
}

func (g *googleGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.options.Model)

	model.SystemInstruction = systemInstruction(g.options.SystemPrompt)

	if g.options.Temperature != nil {
		model.SetTemperature(*g.options.Temperature)
	}

	if g.options.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.options.MaxTokens))
	}

	rsp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	if len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil || len(rsp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from Google")
	}

	var b strings.Builder
	for _, part := range rsp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	return b.String(), nil
}

func systemInstruction(prompt string) *genai.Content {
	if len(prompt) == 0 {
		return nil
	}
	return &genai.Content{Parts: []genai.Part{genai.Text(prompt)}}
}

func NewGenerator(opts ...generator.Option) generator.Generator {
	options := generator.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	g := &googleGenerator{
		options: options,
	}

	client, err := genai.NewClient(
		options.Context,
		genaiopt.WithAPIKey(options.ApiKey),
	)
	if err != nil {
		panic(err)
	}

	g.client = client

	return g
}
