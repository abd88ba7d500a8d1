// Package server serves the caption editor over HTTP.
//
// Every /render request runs its own session: the query seeds the fields,
// the image is fetched and the captioned PNG is written back. A client that
// disconnects cancels its fetch.
package server

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"image"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/roboco-io/imgcaption/internal/caption"
	"github.com/roboco-io/imgcaption/internal/query"
	"github.com/roboco-io/imgcaption/internal/session"
	"github.com/roboco-io/imgcaption/internal/source"
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

// Config holds server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          *log.Logger
}

// Server renders captions over HTTP.
type Server struct {
	cfg      Config
	renderer session.Renderer
	loader   source.Loader
	opts     session.Options
	logger   *log.Logger
	mux      *http.ServeMux

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server. Zero timeouts get defaults; a nil Logger logs to
// the standard logger.
func New(cfg Config, renderer session.Renderer, loader source.Loader, opts session.Options) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.DefaultFontSize <= 0 {
		opts.DefaultFontSize = session.DefaultFontSize
	}

	s := &Server{
		cfg:      cfg,
		renderer: renderer,
		loader:   source.RemoteOnly(loader),
		opts:     opts,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /render", s.handleRender)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Addr returns the bound address once listening, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Printf("server: listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Printf("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type indexData struct {
	Caption  string
	Img      string
	FontSize string
	Echo     string
	Preview  string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	p := query.FromValues(r.URL.Query())

	size := strconv.Itoa(s.opts.DefaultFontSize)
	if p.FontSize != 0 {
		size = strconv.Itoa(p.FontSize)
	}
	data := indexData{
		Caption:  p.Caption,
		Img:      p.Img,
		FontSize: size,
		Echo:     query.PadFontSize(size),
	}
	if p.Img != "" {
		data.Preview = "/render?" + p.Encode()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		s.logger.Printf("server: index template: %v", err)
	}
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	p := query.FromValues(r.URL.Query())
	if p.Img == "" {
		http.Error(w, "missing img parameter", http.StatusBadRequest)
		return
	}

	sink := &responseSink{}
	sess := session.New(s.loader, s.renderer, sink, s.opts)
	defer sess.Close()

	err := sess.LoadQuery(r.Context(), r.URL.RawQuery)
	switch {
	case sink.canvas != nil:
	case sink.loadFailed:
		http.Error(w, session.MsgLoadFailed, http.StatusBadGateway)
		return
	case sink.msg != "":
		http.Error(w, sink.msg, http.StatusUnprocessableEntity)
		return
	case err != nil && r.Context().Err() != nil:
		// Client went away.
		return
	default:
		http.Error(w, "nothing rendered", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := caption.Encode(&buf, sink.canvas, "png", 0); err != nil {
		http.Error(w, session.MsgRenderFailed+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// responseSink collects the single outcome of a request's session.
type responseSink struct {
	mu         sync.Mutex
	canvas     *image.RGBA
	msg        string
	loadFailed bool
}

func (rs *responseSink) Show(canvas *image.RGBA) {
	rs.mu.Lock()
	rs.canvas = canvas
	rs.mu.Unlock()
}

func (rs *responseSink) Hide() {}

func (rs *responseSink) Error(msg string) {
	rs.mu.Lock()
	rs.msg = msg
	rs.loadFailed = msg == session.MsgLoadFailed
	rs.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("server: %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
