// Package server provides the HTTP server for the docsite web application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/euforicio/docsite/internal/config"
	"github.com/euforicio/docsite/internal/content"
	"github.com/euforicio/docsite/internal/metrics"
	"github.com/euforicio/docsite/internal/renderer/d2"
	"github.com/euforicio/docsite/internal/viewer"
)

// Server serves a read-only documentation tree: pages with interactive
// diagram widgets, the navigation tree, diagram snapshots and a live-reload
// event stream.
type Server struct { //nolint:govet // field order favors logical grouping over padding optimizations
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
	content    *content.Service
	d2         *d2.Renderer
	metrics    *metrics.Recorder
	templates  *templateRenderer
	cfg        config.Config
	themes     []themeSheet
	compress   middleware
}

// New constructs a Server with the provided configuration and services and
// registers all routes. rec may be nil to disable metrics. The server does
// not listen until Start is called.
func New(cfg config.Config, logger *slog.Logger, contentSvc *content.Service, d2Renderer *d2.Renderer, rec *metrics.Recorder) (*Server, error) {
	if contentSvc == nil {
		return nil, errors.New("content service must be provided")
	}
	if d2Renderer == nil {
		return nil, errors.New("d2 renderer must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := newTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	compress, err := newCompressor()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "http"),
		content:   contentSvc,
		d2:        d2Renderer,
		metrics:   rec,
		templates: tmpl,
		compress:  compress,
	}

	s.registerRoutes()
	s.themes = s.discoverThemes(s.themeDirs()...)

	return s, nil
}

func (s *Server) registerRoutes() {
	staticHandler := http.StripPrefix("/static/", http.FileServer(s.staticFS()))
	s.mux.Handle("GET /static/{path...}", staticHandler)
	s.mux.Handle("HEAD /static/{path...}", staticHandler)

	s.mux.HandleFunc("GET /custom-theme/{index}", s.handleCustomCSS)
	s.mux.HandleFunc("GET /media/{path...}", s.handleMedia)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /page/{path...}", s.handlePageRoute)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)

	s.mux.HandleFunc("GET /api/tree", s.handleTree)
	s.mux.HandleFunc("GET /api/page/{path...}", s.handlePage)
	s.mux.HandleFunc("GET /api/diagram/{index}/png", s.handleDiagramPNG)
	s.mux.HandleFunc("GET /events", s.handleEvents)
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return wrap(s.mux,
		recoverPanics(s.logger),
		s.compress,
		logRequests(s.logger, s.cfg.Verbose),
	)
}

// engines returns the diagram engines used for one attach pass.
func (s *Server) engines() []viewer.Engine {
	d2Engine := d2.NewEngine(s.d2).WithObserver(func(res d2.Result, err error) {
		s.metrics.ObserveD2(res.Duration, res.Cached, err)
	})
	return []viewer.Engine{viewer.Mermaid(), d2Engine}
}

// Start runs the HTTP server and optionally opens the browser. Port 0 binds
// a random loopback port. Start blocks until ctx is canceled or the server
// stops, shutting down gracefully on cancellation.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	if s.cfg.Port == 0 {
		addr = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		_ = listener.Close()
		return fmt.Errorf("unexpected listener address type %T", listener.Addr())
	}
	serverURL := fmt.Sprintf("http://localhost:%d", tcpAddr.Port)

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Event streams stay open; handlers bound their own work.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if _, err := fmt.Fprintf(os.Stdout, "docsite listening on %s\n", serverURL); err != nil {
			s.logger.Warn("failed to announce server address", slog.String("url", serverURL), slog.Any("err", err))
		}
		errCh <- s.httpServer.Serve(listener)
	}()

	if s.cfg.AutoOpen {
		go s.openBrowserWhenReady(ctx, serverURL)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(ctx, "graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server, waiting for active connections until
// ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) openBrowserWhenReady(ctx context.Context, url string) {
	timer := time.NewTimer(300 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if err := openBrowser(ctx, url); err != nil {
			s.logger.WarnContext(ctx, "auto-open failed", slog.String("url", url), slog.Any("err", err))
		}
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}
