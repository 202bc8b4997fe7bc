package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/w-h-a/therapist/chat"
	"github.com/w-h-a/therapist/internal/observability"
	"github.com/w-h-a/therapist/internal/service/session"
	"github.com/w-h-a/therapist/memory"
	"github.com/w-h-a/therapist/server"
)

// Responder answers one user message within a conversation.
type Responder interface {
	Respond(ctx context.Context, conv chat.Conversation, text string) (string, error)
}

type httpServer struct {
	options  server.Options
	bot      Responder
	sessions *session.Service
	memory   memory.Memory
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	srv      *http.Server
}

func (s *httpServer) Start() error {
	slog.InfoContext(s.options.Context, "starting http server", "name", s.options.Name, "address", s.options.Address)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.options.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *httpServer) Handler() http.Handler {
	return s.srv.Handler
}

func (s *httpServer) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.observe)

	if ms, ok := MiddlewareFrom(s.options.Context); ok {
		for _, m := range ms {
			r.Use(mux.MiddlewareFunc(m))
		}
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", s.startSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.endSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/messages", s.sendMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/memories", s.searchMemories).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.chatSocket).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler(s.gatherer)).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websockets.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *httpServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		if route == "/ws" {
			next.ServeHTTP(w, r)
			s.metrics.ObserveHTTPRequest(route, "101")
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.ObserveHTTPRequest(route, strconv.Itoa(rec.status))
	})
}

func (s *httpServer) checkOrigin(r *http.Request) bool {
	if AllowAnyOriginFrom(s.options.Context) {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func NewServer(
	bot Responder,
	sessions *session.Service,
	mem memory.Memory,
	metrics *observability.Metrics,
	gatherer prometheus.Gatherer,
	opts ...server.Option,
) *httpServer {
	options := server.NewOptions(opts...)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &httpServer{
		options:  options,
		bot:      bot,
		sessions: sessions,
		memory:   mem,
		metrics:  metrics,
		gatherer: gatherer,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.srv = &http.Server{
		Addr:              options.Address,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}
