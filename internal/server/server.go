package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/example/go-bangla-bpe/internal/config"
	"github.com/example/go-bangla-bpe/internal/model"
	"github.com/example/go-bangla-bpe/internal/text"
	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// ModelSource yields the model to encode with. It may return nil before a
// model has been loaded.
type ModelSource interface {
	Model() *tokenizer.Model
}

// Reloader re-reads the model from its artifacts.
type Reloader interface {
	Reload(ctx context.Context) (*tokenizer.Model, error)
}

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	maxBatch       int
	workers        int
	batchWorkers   int
	requestTimeout time.Duration
	strategy       tokenizer.Strategy
	form           text.Form
	hideEndMarker  bool
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   65536,
		maxBatch:       256,
		workers:        2,
		batchWorkers:   4,
		requestTimeout: 30 * time.Second,
		strategy:       tokenizer.StrategyNaive,
		form:           text.FormNone,
		hideEndMarker:  true,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes per text.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxBatch sets the maximum number of texts in one batch request.
func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

// WithWorkers sets the maximum number of concurrently served tokenize
// requests. Zero disables the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithBatchWorkers sets the per-request parallelism of batch encoding.
func WithBatchWorkers(n int) Option {
	return func(o *options) { o.batchWorkers = n }
}

// WithRequestTimeout sets the per-request encoding deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithStrategy selects the merge strategy.
func WithStrategy(s tokenizer.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithForm sets the Unicode normalization applied to request text.
func WithForm(f text.Form) Option {
	return func(o *options) { o.form = f }
}

// WithHideEndMarker sets the display default when a request does not say.
func WithHideEndMarker(hide bool) Option {
	return func(o *options) { o.hideEndMarker = hide }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	models   ModelSource
	reloader Reloader
	opts     options
	sem      *semaphore.Weighted // nil when unlimited
	log      *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /model,
// POST /tokenize and POST /tokenize/batch. POST /reload is served when
// models also implements Reloader.
func NewHandler(models ModelSource, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		models: models,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = semaphore.NewWeighted(int64(opts.workers))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /model", h.handleModel)
	mux.HandleFunc("POST /tokenize", h.handleTokenize)
	mux.HandleFunc("POST /tokenize/batch", h.handleTokenizeBatch)
	if rl, ok := models.(Reloader); ok {
		h.reloader = rl
		mux.HandleFunc("POST /reload", h.handleReload)
	}

	return withRequestID(mux)
}

type ctxKey struct{}

// withRequestID tags every request with an id, taken from the incoming
// header when present, and echoes it in the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) currentModel() *tokenizer.Model {
	if h.models == nil {
		return nil
	}
	return h.models.Model()
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      buildVersion(),
		"model_loaded": h.currentModel().Complete(),
	})
}

type modelResponse struct {
	Loaded   bool   `json:"loaded"`
	Strategy string `json:"strategy"`
	tokenizer.Stats
}

func (h *handler) handleModel(w http.ResponseWriter, _ *http.Request) {
	m := h.currentModel()
	writeJSON(w, http.StatusOK, modelResponse{
		Loaded:   m != nil,
		Strategy: string(h.opts.strategy),
		Stats:    m.Stats(),
	})
}

type tokenizeRequest struct {
	Text          string `json:"text"`
	HideEndMarker *bool  `json:"hide_end_marker"`
}

type batchRequest struct {
	Texts         []string `json:"texts"`
	HideEndMarker *bool    `json:"hide_end_marker"`
}

type tokenizeResponse struct {
	Tokens        []string `json:"tokens"`
	DisplayTokens []string `json:"display_tokens"`
	IDs           []int    `json:"ids"`
	Unknown       int      `json:"unknown"`
}

type batchResponse struct {
	Results []tokenizeResponse `json:"results"`
}

func (h *handler) handleTokenize(w http.ResponseWriter, r *http.Request) {
	var req tokenizeRequest
	if !h.decode(w, r, int64(h.opts.maxTextBytes)*2+1024, &req) {
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	normalized, err := text.Normalize(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	results, ok := h.serveEncode(w, r, []string{normalized}, h.hide(req.HideEndMarker))
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, results[0])
}

func (h *handler) handleTokenizeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	limit := (int64(h.opts.maxTextBytes)*2 + 16) * int64(max(h.opts.maxBatch, 1))
	if !h.decode(w, r, limit+1024, &req) {
		return
	}

	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "texts field is required")
		return
	}
	if h.opts.maxBatch > 0 && len(req.Texts) > h.opts.maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds maximum of %d texts", h.opts.maxBatch))
		return
	}

	texts := make([]string, len(req.Texts))
	for i, t := range req.Texts {
		if len(t) > h.opts.maxTextBytes {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("texts[%d] exceeds maximum size of %d bytes", i, h.opts.maxTextBytes))
			return
		}
		// Blank entries encode to empty results rather than failing the batch.
		texts[i], _ = text.Normalize(t)
	}

	results, ok := h.serveEncode(w, r, texts, h.hide(req.HideEndMarker))
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (h *handler) handleReload(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("request_id", requestID(r.Context())))

	m, err := h.reloader.Reload(r.Context())
	if err != nil {
		log.ErrorContext(r.Context(), "reload failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.InfoContext(r.Context(), "model reloaded", slog.Int("merges", m.NumMerges()))
	writeJSON(w, http.StatusOK, modelResponse{
		Loaded:   true,
		Strategy: string(h.opts.strategy),
		Stats:    m.Stats(),
	})
}

func (h *handler) hide(requested *bool) bool {
	if requested != nil {
		return *requested
	}
	return h.opts.hideEndMarker
}

// decode reads a JSON body of at most limit bytes into v, writing the error
// response itself when it fails.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}

	return true
}

// serveEncode applies the worker limit and request deadline around encoding
// texts, and writes the error response itself when it fails.
func (h *handler) serveEncode(w http.ResponseWriter, r *http.Request, texts []string, hide bool) ([]tokenizeResponse, bool) {
	log := h.log.With(slog.String("request_id", requestID(r.Context())))

	m := h.currentModel()
	if !m.Complete() {
		log.WarnContext(r.Context(), "tokenize refused", slog.String("error", tokenizer.ErrModelNotLoaded.Error()))
		writeError(w, http.StatusServiceUnavailable, tokenizer.ErrModelNotLoaded.Error())
		return nil, false
	}

	// Acquire a worker slot, honouring cancellation while waiting. The slot
	// is released by the encoding goroutine, not by this handler, so an
	// encode that outlives its request still counts against the limit.
	release := func() {}
	if h.sem != nil {
		if err := h.sem.Acquire(r.Context(), 1); err != nil {
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return nil, false
		}
		release = func() { h.sem.Release(1) }
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	for i := range texts {
		texts[i] = text.ApplyForm(texts[i], h.opts.form)
	}

	tok := tokenizer.NewBPETokenizer(m,
		tokenizer.WithStrategy(h.opts.strategy),
		tokenizer.WithWorkers(h.opts.batchWorkers),
	)

	start := time.Now()
	encs, err := encodeWithDeadline(ctx, tok, texts, release)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.WarnContext(r.Context(), "tokenize timed out",
				slog.Int("texts", len(texts)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusGatewayTimeout, "tokenize timed out")
			return nil, false
		}
		log.ErrorContext(r.Context(), "tokenize failed",
			slog.Int("texts", len(texts)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}

	out := make([]tokenizeResponse, len(encs))
	tokens, unknown := 0, 0
	for i, enc := range encs {
		out[i] = tokenizeResponse{
			Tokens:        enc.Tokens,
			DisplayTokens: enc.Display(hide),
			IDs:           enc.IDs,
			Unknown:       enc.Unknown(),
		}
		tokens += len(enc.Tokens)
		unknown += out[i].Unknown
	}

	log.InfoContext(r.Context(), "tokenize complete",
		slog.Int("texts", len(texts)),
		slog.Int("tokens", tokens),
		slog.Int("unknown", unknown),
		slog.Int64("duration_ms", durationMS),
	)

	return out, true
}

// encodeWithDeadline returns as soon as ctx is done even if a long word is
// still being encoded. release runs once encoding has actually finished.
func encodeWithDeadline(ctx context.Context, tok *tokenizer.BPETokenizer, texts []string, release func()) ([]tokenizer.Encoding, error) {
	type result struct {
		encs []tokenizer.Encoding
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		defer release()
		encs, err := tok.EncodeBatch(ctx, texts)
		ch <- result{encs, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.encs, r.err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	store           *model.Store
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a Server for cfg. A nil store is created from cfg.Paths.
func New(cfg config.Config, store *model.Store) *Server {
	if store == nil {
		store = model.NewStore(model.Artifacts{
			MergesPath: cfg.Paths.MergesPath,
			VocabPath:  cfg.Paths.VocabPath,
		})
	}

	shutdown := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		shutdown = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		store:           store,
		logger:          slog.Default(),
		shutdownTimeout: shutdown,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Start loads the model, serves until ctx is cancelled, then drains
// in-flight requests. An incomplete model does not prevent startup; tokenize
// requests are refused until a reload completes it.
func (s *Server) Start(ctx context.Context) error {
	strategy, err := tokenizer.ParseStrategy(s.cfg.Encode.Strategy)
	if err != nil {
		return err
	}
	form, err := text.ParseForm(s.cfg.Encode.Normalization)
	if err != nil {
		return err
	}

	m, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if !m.Complete() {
		s.logger.WarnContext(ctx, "serving without a complete model",
			slog.String("merges_path", s.store.Artifacts().MergesPath),
			slog.String("vocab_path", s.store.Artifacts().VocabPath),
		)
	}

	if s.cfg.Server.WatchModel {
		go func() {
			if err := s.store.Watch(ctx); err != nil {
				s.logger.ErrorContext(ctx, "model watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	h := NewHandler(s.store,
		WithWorkers(s.cfg.Server.Workers),
		WithBatchWorkers(s.cfg.Encode.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithStrategy(strategy),
		WithForm(form),
		WithHideEndMarker(s.cfg.Encode.HideEndMarker),
		WithLogger(s.logger),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.InfoContext(ctx, "listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks GET /health on addr. A bare ":port" probes localhost.
func ProbeHTTP(addr string) error {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(addr, "/") + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
