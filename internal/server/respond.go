package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/euforicio/docsite/internal/content"
)

var (
	errPathRequired        = errors.New("path is required")
	errInvalidPathEncoding = errors.New("invalid path encoding")
)

// apiError is the body of every non-2xx JSON answer.
type apiError struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode JSON response failed", slog.Any("err", err))
	}
}

// respondError answers with the status err maps to: 404 for missing
// documents, 400 for rejected paths and 500 for everything else.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, content.ErrInvalidPath),
		errors.Is(err, errPathRequired),
		errors.Is(err, errInvalidPathEncoding):
		status = http.StatusBadRequest
	}
	respondJSON(w, status, apiError{Error: err.Error()})
}

// htmx marks requests issued by the page shell, which expect fragments.
func htmx(r *http.Request) bool {
	return r.Header.Get("HX-Request") != ""
}

// trigger raises the client-side event name with detail once the fragment
// has been swapped in.
func trigger(w http.ResponseWriter, name string, detail any) {
	payload, err := json.Marshal(map[string]any{name: detail})
	if err != nil {
		slog.Warn("encode HX-Trigger failed", slog.String("event", name), slog.Any("err", err))
		return
	}
	w.Header().Set("HX-Trigger", string(payload))
}

// parseWildcardPath decodes a {path...} value or a page= query parameter.
func parseWildcardPath(raw string) (string, error) {
	decoded, err := url.PathUnescape(strings.TrimSpace(raw))
	if err != nil {
		return "", errInvalidPathEncoding
	}
	if decoded = strings.TrimSpace(decoded); decoded == "" {
		return "", errPathRequired
	}
	return decoded, nil
}
