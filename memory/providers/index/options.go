package index

import "context"

type Option func(*Options)

type Options struct {
	Location   string
	ApiKey     string
	Collection string
	Dimension  int
	Metric     string
	Cloud      string
	Region     string
	Context    context.Context
}

func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

// WithCollection names the collection, index or table holding the turns.
func WithCollection(collection string) Option {
	return func(o *Options) {
		o.Collection = collection
	}
}

func WithDimension(dimension int) Option {
	return func(o *Options) {
		o.Dimension = dimension
	}
}

func WithMetric(metric string) Option {
	return func(o *Options) {
		o.Metric = metric
	}
}

func WithCloud(cloud string) Option {
	return func(o *Options) {
		o.Cloud = cloud
	}
}

func WithRegion(region string) Option {
	return func(o *Options) {
		o.Region = region
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Dimension: 768,
		Metric:    "cosine",
		Cloud:     "aws",
		Context:   context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
