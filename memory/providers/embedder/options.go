package embedder

import "context"

type Option func(*Options)

type Options struct {
	ApiKey    string
	Model     string
	Location  string
	Dimension int
	Context   context.Context
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

// WithLocation overrides the provider's API base URL.
func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

// WithDimension fixes the length of every vector the embedder returns. It
// must match the dimension the index was provisioned with.
func WithDimension(dimension int) Option {
	return func(o *Options) {
		o.Dimension = dimension
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
