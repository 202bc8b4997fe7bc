package server

import (
	"context"
	"time"
)

type Option func(*Options)

type Options struct {
	Name            string
	Address         string
	ShutdownTimeout time.Duration
	Context         context.Context
}

func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

func WithAddress(addr string) Option {
	return func(o *Options) {
		o.Address = addr
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ShutdownTimeout = timeout
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Name:            "therapist",
		Address:         ":5001",
		ShutdownTimeout: 15 * time.Second,
		Context:         context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
