package webhook

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/go-github/v57/github"

	"hubhook/internal"
	"hubhook/pkg/hook"
)

// GitHubHandler handles incoming webhooks from GitHub.
type GitHubHandler struct {
	dispatcher *Dispatcher
	logger     *log.Logger
	maxBody    int64
}

// NewGitHubHandler creates a new GitHubHandler.
func NewGitHubHandler(dispatcher *Dispatcher, logger *log.Logger, maxBody int64) (*GitHubHandler, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GitHubHandler{dispatcher: dispatcher, logger: logger, maxBody: maxBody}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("http")
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.Printf("read body failed: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), reqID, hook.NewInboundEvent(rawBody, flattenHeaders(r.Header)))
	if err != nil {
		logger.Printf("github dispatch failed: %v", err)
		resp = ResponseSecretUnavailable
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp hook.Response) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

// flattenHeaders keeps the first value of each header under its lowercased name.
func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	return out
}

// requestID prefers GitHub's delivery GUID so log lines can be matched to the hook's
// delivery history.
func requestID(r *http.Request) string {
	if id := github.DeliveryID(r); id != "" {
		return id
	}
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return watermill.NewUUID()
}

// HealthHandler answers liveness probes.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, hook.ResponseOK)
	})
}
