package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"twitch-chat-bridge/chatqueue"
	"twitch-chat-bridge/metrics"
	"twitch-chat-bridge/model"
)

// staticAssets — единственные файлы, которые отдаёт сервер, и их типы.
var staticAssets = map[string]string{
	"ui.html":   "text/html; charset=utf-8",
	"script.js": "text/javascript; charset=utf-8",
	"style.css": "text/css; charset=utf-8",
}

const shutdownTimeout = 5 * time.Second

// Queue — то, что сервер читает из очереди чата.
type Queue interface {
	GetSince(ctx context.Context, cursor *int64, timeout time.Duration) ([]model.ChatEvent, error)
	Incarnation() string
	PositionOf(id uint64) chatqueue.Position
	Bounds() (oldest, next uint64)
	Len() int
}

// PollObserver получает исход каждого long-poll запроса.
type PollObserver interface {
	Polled(outcome string, seconds float64)
}

type nopObserver struct{}

func (nopObserver) Polled(string, float64) {}

// Config задаёт порт, ожидание long-poll и каталог статики.
type Config struct {
	ListenPort     int
	RequestTimeout time.Duration
	StaticDir      string
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт логгер.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) { s.log = l }
}

// WithPollObserver подключает метрики long-poll.
func WithPollObserver(o PollObserver) Option {
	return func(s *Server) { s.observer = o }
}

// WithMetrics открывает /metrics для указанного реестра.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// Server — HTTP-граница: long-poll выдача сообщений и статика клиента.
type Server struct {
	cfg      Config
	queue    Queue
	log      *zap.SugaredLogger
	observer PollObserver
	gatherer prometheus.Gatherer
	origin   string
	router   *mux.Router
}

type pollResponse struct {
	SID      string            `json:"sid"`
	Messages []model.ChatEvent `json:"messages"`
}

// NewServer собирает маршруты.
func NewServer(cfg Config, queue Queue, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		queue:    queue,
		log:      zap.NewNop().Sugar(),
		observer: nopObserver{},
		origin:   fmt.Sprintf("http://localhost:%d", cfg.ListenPort),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/get-messages", s.handleGetMessages).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/debug/position", s.handlePosition).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/{asset}", s.handleAsset).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler возвращает корневой http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe обслуживает запросы до отмены ctx. Отмена ctx прерывает
// ожидающие long-poll запросы.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.ListenPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("слушаю %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("delivery: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("delivery: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("delivery: listen: %w", err)
	}
	return nil
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sid := s.queue.Incarnation()

	var cursor *int64
	if q.Get("sid") == sid {
		if mid, err := strconv.ParseInt(q.Get("mid"), 10, 64); err == nil {
			cursor = &mid
		}
	}

	started := time.Now()
	events, err := s.queue.GetSince(r.Context(), cursor, s.cfg.RequestTimeout)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		s.observer.Polled(metrics.PollCancelled, elapsed)
		if r.Context().Err() != nil {
			return
		}
		s.log.Errorf("ошибка чтения очереди: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if len(events) == 0 {
		s.observer.Polled(metrics.PollEmpty, elapsed)
		events = []model.ChatEvent{}
	} else {
		s.observer.Polled(metrics.PollMessages, elapsed)
	}

	w.Header().Set("Access-Control-Allow-Origin", s.origin)
	s.writeJSON(w, pollResponse{SID: sid, Messages: events})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	oldest, next := s.queue.Bounds()
	s.writeJSON(w, map[string]any{
		"status": "ok",
		"sid":    s.queue.Incarnation(),
		"oldest": oldest,
		"next":   next,
		"depth":  s.queue.Len(),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	mid, err := strconv.ParseUint(r.URL.Query().Get("mid"), 10, 64)
	if err != nil {
		http.Error(w, "mid must be a non-negative integer", http.StatusBadRequest)
		return
	}

	pos := s.queue.PositionOf(mid)
	body := map[string]any{"mid": mid, "kind": pos.Kind.String()}
	if pos.Kind == chatqueue.PositionIndexed {
		body["index"] = pos.Index
	}
	s.writeJSON(w, body)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "ui.html")
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, mux.Vars(r)["asset"])
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, name string) {
	contentType, ok := staticAssets[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := os.ReadFile(filepath.Join(s.cfg.StaticDir, name))
	if err != nil {
		s.log.Warnf("статика %s недоступна: %v", name, err)
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Access-Control-Allow-Origin", s.origin)
	_, _ = w.Write(body)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("ошибка записи ответа: %v", err)
	}
}
