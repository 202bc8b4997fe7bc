package generator

import "context"

type Option func(*Options)

type Options struct {
	ApiKey       string
	Model        string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
	Context      context.Context
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithSystemPrompt sets instructions sent ahead of every prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

func WithTemperature(temperature float32) Option {
	return func(o *Options) {
		o.Temperature = &temperature
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(o *Options) {
		o.MaxTokens = maxTokens
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		MaxTokens: 1024,
		Context:   context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
