package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/w-h-a/therapist/chat"
	"github.com/w-h-a/therapist/generator"
	anthropicgenerator "github.com/w-h-a/therapist/generator/anthropic"
	googlegenerator "github.com/w-h-a/therapist/generator/google"
	openaigenerator "github.com/w-h-a/therapist/generator/openai"
	"github.com/w-h-a/therapist/internal/config"
	"github.com/w-h-a/therapist/internal/observability"
	"github.com/w-h-a/therapist/internal/service/session"
	"github.com/w-h-a/therapist/memory"
	"github.com/w-h-a/therapist/memory/providers/embedder"
	googleembedder "github.com/w-h-a/therapist/memory/providers/embedder/google"
	openaiembedder "github.com/w-h-a/therapist/memory/providers/embedder/openai"
	"github.com/w-h-a/therapist/memory/providers/index"
	"github.com/w-h-a/therapist/memory/providers/index/chromem"
	memoryindex "github.com/w-h-a/therapist/memory/providers/index/memory"
	"github.com/w-h-a/therapist/memory/providers/index/pinecone"
	"github.com/w-h-a/therapist/memory/providers/index/postgres"
	"github.com/w-h-a/therapist/memory/providers/index/qdrant"
	"github.com/w-h-a/therapist/memory/semantic"
	"github.com/w-h-a/therapist/server"
	httpserver "github.com/w-h-a/therapist/server/http"
)

func main() {
	cfg, command, err := config.Parse(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "therapist: %v\n", err)
		os.Exit(2)
	}

	slog.SetDefault(slog.New(logHandler(cfg, os.Stderr)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics("therapist", reg)

	emb := newEmbedder(cfg)
	defer closeIfCloser(emb)

	gen := newGenerator(cfg)
	defer closeIfCloser(gen)

	mem := semantic.NewMemory(
		memory.WithEmbedder(emb),
		memory.WithIndex(newIndex(cfg)),
		memory.WithMetrics(metrics),
		memory.WithTimeout(cfg.MemoryTimeout),
		memory.WithTopK(cfg.MemoryTopK),
	)

	bot := chat.New(mem, gen, metrics, cfg.SystemPrompt, cfg.ContextSize)
	sessions := session.New()

	switch command {
	case config.CommandChat:
		err = runChat(ctx, bot, sessions, cfg.Chat.User, os.Stdin, os.Stdout)
	default:
		err = runServe(ctx, cfg, bot, sessions, mem, metrics, reg)
	}

	if err != nil {
		slog.ErrorContext(ctx, "therapist exited", "error", err)
		os.Exit(1)
	}
}

func runServe(
	ctx context.Context,
	cfg *config.Config,
	bot *chat.Bot,
	sessions *session.Service,
	mem memory.Memory,
	metrics *observability.Metrics,
	reg *prometheus.Registry,
) error {
	srv := httpserver.NewServer(
		bot,
		sessions,
		mem,
		metrics,
		reg,
		server.WithAddress(cfg.Serve.Address),
		httpserver.WithAllowAnyOrigin(cfg.Serve.AllowAnyOrigin),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.InfoContext(ctx, "shutting down http server")

	return srv.Stop(context.WithoutCancel(ctx))
}

// runChat is the terminal version of the chat: it asks for a user id when
// none was given, then answers each line until EOF or "exit".
func runChat(ctx context.Context, bot *chat.Bot, sessions *session.Service, userId string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for len(strings.TrimSpace(userId)) == 0 {
		fmt.Fprintln(out, chat.Welcome)
		if !scanner.Scan() {
			return scanner.Err()
		}
		userId = scanner.Text()
	}

	sess, err := sessions.Start(ctx, userId)
	if err != nil {
		return err
	}
	defer sessions.End(context.WithoutCancel(ctx), sess.ID())

	fmt.Fprintln(out, chat.Greeting(sess.UserID()))

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "exit" || text == "quit" {
			return nil
		}
		if len(text) == 0 {
			continue
		}

		reply, err := bot.Respond(ctx, sess, text)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			slog.ErrorContext(ctx, "failed to respond", "error", err)
			fmt.Fprintln(out, "An error occurred while processing your message.")
			continue
		}

		fmt.Fprintln(out, reply)
	}
}

func logHandler(cfg *config.Config, w io.Writer) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func newEmbedder(cfg *config.Config) embedder.Embedder {
	switch cfg.EmbedderProvider {
	case "openai":
		return openaiembedder.NewEmbedder(
			embedder.WithApiKey(cfg.OpenAIAPIKey),
			embedder.WithModel(cfg.EmbedderModel),
			embedder.WithDimension(cfg.IndexDimension),
		)
	default:
		return googleembedder.NewEmbedder(
			embedder.WithApiKey(cfg.GoogleAPIKey),
			embedder.WithModel(cfg.EmbedderModel),
			embedder.WithDimension(cfg.IndexDimension),
		)
	}
}

func newGenerator(cfg *config.Config) generator.Generator {
	opts := []generator.Option{
		generator.WithModel(cfg.GeneratorModel),
	}

	switch cfg.GeneratorProvider {
	case "openai":
		return openaigenerator.NewGenerator(append(opts, generator.WithApiKey(cfg.OpenAIAPIKey))...)
	case "anthropic":
		return anthropicgenerator.NewGenerator(append(opts, generator.WithApiKey(cfg.AnthropicAPIKey))...)
	default:
		return googlegenerator.NewGenerator(append(opts, generator.WithApiKey(cfg.GoogleAPIKey))...)
	}
}

func newIndex(cfg *config.Config) index.Index {
	dimension := index.WithDimension(cfg.IndexDimension)

	switch cfg.IndexProvider {
	case "memory":
		return memoryindex.NewIndex()
	case "chromem":
		return chromem.NewIndex(
			index.WithLocation(cfg.ChromemPath),
		)
	case "qdrant":
		return qdrant.NewIndex(
			index.WithLocation(cfg.QdrantURL),
			dimension,
		)
	case "postgres":
		return postgres.NewIndex(
			index.WithLocation(cfg.DatabaseURL),
			dimension,
		)
	default:
		return pinecone.NewIndex(
			index.WithApiKey(cfg.PineconeAPIKey),
			index.WithCollection(cfg.PineconeIndex),
			index.WithCloud(cfg.PineconeCloud),
			index.WithRegion(cfg.PineconeEnv),
			dimension,
		)
	}
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close client", "error", err)
		}
	}
}
