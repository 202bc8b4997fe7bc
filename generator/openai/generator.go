package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/therapist/generator"
)

type openAIGenerator struct {
	options generator.Options
	client  *openai.Client
}

func (g *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessage

	if len(g.options.SystemPrompt) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: g.options.SystemPrompt,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     g.options.Model,
		Messages:  messages,
		MaxTokens: g.options.MaxTokens,
	}

	if g.options.Temperature != nil {
		req.Temperature = *g.options.Temperature
	}

	rsp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	return rsp.Choices[0].Message.Content, nil
}

func NewGenerator(opts ...generator.Option) generator.Generator {
	options := generator.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = openai.GPT4oMini
	}

	g := &openAIGenerator{
		options: options,
	}

	g.client = openai.NewClient(options.ApiKey)

	return g
}
