package auth

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Credentials maps user names to their accepted token.
type Credentials map[string]string

// Handler is a sample auth endpoint backed by a credential table.
type Handler struct {
	logger *slog.Logger

	mu          sync.RWMutex
	credentials Credentials
}

// NewHandler creates a Handler. A nil logger uses slog.Default().
func NewHandler(credentials Credentials, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	creds := make(Credentials, len(credentials))
	for user, token := range credentials {
		creds[user] = token
	}
	return &Handler{logger: logger.With("component", "auth"), credentials: creds}
}

// SetCredential adds or replaces a user's token.
func (h *Handler) SetCredential(user, token string) {
	h.mu.Lock()
	h.credentials[user] = token
	h.mu.Unlock()
}

// Check evaluates the user and token parameters.
func (h *Handler) Check(params url.Values) Result {
	user, token := params.Get(ParamUser), params.Get(ParamToken)
	if user == "" || token == "" {
		return Result{ResultCode: ResultInvalidParams, Message: "user and token are required"}
	}

	h.mu.RLock()
	want, ok := h.credentials[user]
	h.mu.RUnlock()

	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(token)) != 1 {
		return Result{ResultCode: ResultFailed, Message: "invalid credentials"}
	}
	return Result{ResultCode: ResultOK, UserID: user}
}

// ServeHTTP answers GET ?user=...&token=... with a JSON Result.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := h.Check(r.URL.Query())
	h.logger.Info("auth request", "user", r.URL.Query().Get(ParamUser), "result", res.ResultCode)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		h.logger.Error("write auth result", "error", err)
	}
}

// NewRouter mounts h at /auth and a liveness probe at /healthz.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/auth", h.ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}
