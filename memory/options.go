package memory

import (
	"context"
	"time"

	"github.com/w-h-a/therapist/internal/observability"
	"github.com/w-h-a/therapist/memory/providers/embedder"
	"github.com/w-h-a/therapist/memory/providers/index"
)

const (
	DefaultTopK    = 5
	DefaultTimeout = 15 * time.Second
)

type Option func(*Options)

type Options struct {
	Embedder embedder.Embedder
	Index    index.Index
	Metrics  *observability.Metrics
	Timeout  time.Duration
	TopK     int
	Clock    func() time.Time
	Context  context.Context
}

func WithEmbedder(embedder embedder.Embedder) Option {
	return func(o *Options) {
		o.Embedder = embedder
	}
}

func WithIndex(index index.Index) Option {
	return func(o *Options) {
		o.Index = index
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *Options) {
		o.Metrics = metrics
	}
}

// WithTimeout bounds each call to the embedder and the index.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

func WithTopK(topK int) Option {
	return func(o *Options) {
		o.TopK = topK
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Timeout: DefaultTimeout,
		TopK:    DefaultTopK,
		Clock:   time.Now,
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	if options.TopK <= 0 {
		options.TopK = DefaultTopK
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	return options
}
