package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

type middleware func(http.Handler) http.Handler

// wrap applies mw so that the first entry is the outermost handler.
func wrap(h http.Handler, mw ...middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// compressMinSize keeps tiny JSON answers uncompressed.
const compressMinSize = 256

// newCompressor gzips text responses. PNG snapshots are already compressed
// and event streams must reach the browser frame by frame.
func newCompressor() (middleware, error) {
	gz, err := gzhttp.NewWrapper(
		gzhttp.MinSize(compressMinSize),
		gzhttp.ExceptContentTypes([]string{"image/png", "text/event-stream"}),
	)
	if err != nil {
		return nil, fmt.Errorf("gzip middleware: %w", err)
	}
	return func(next http.Handler) http.Handler { return gz(next) }, nil
}

// recoverPanics turns a handler panic into a 500. API callers get the JSON
// error shape, browsers a plain message.
func recoverPanics(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				logger.ErrorContext(r.Context(), "handler panic",
					slog.Any("panic", v),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				if strings.HasPrefix(r.URL.Path, "/api/") {
					respondJSON(w, http.StatusInternalServerError, apiError{Error: "internal server error"})
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// logRequests records server errors always and every request when verbose.
// The route attribute is the matched mux pattern, so snapshot and page
// requests group together regardless of the document path.
func logRequests(logger *slog.Logger, verbose bool) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case !verbose:
				return
			case rec.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("uri", r.RequestURI),
				slog.Int("status", rec.status),
				slog.Int64("bytes_out", rec.written),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

// responseRecorder captures status and size. Unwrap lets
// http.ResponseController reach the underlying writer's Flush.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (w *responseRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Flush keeps the event stream moving through the recorder.
func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
