package testserver

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/boardindex/bpt/internal/buildinfo"
	"github.com/boardindex/bpt/internal/domain"
)

// Handlers serves the test server's own endpoints
type Handlers struct {
	state  State
	logger *zap.SugaredLogger
}

// State describes the index being served
type State struct {
	IndexFile     string
	SourceIndex   string
	PackageCount  int
	PlatformCount int
	StartedAt     time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(state State, logger *zap.SugaredLogger) *Handlers {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handlers{state: state, logger: logger}
}

// Health reports what is being served
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.HealthResponse{
		Status:        "ok",
		IndexFile:     h.state.IndexFile,
		SourceIndex:   h.state.SourceIndex,
		PackageCount:  h.state.PackageCount,
		PlatformCount: h.state.PlatformCount,
		StartedAt:     h.state.StartedAt.Format(time.RFC3339),
	})
}

// Version returns build version information
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

// MethodNotAllowed rejects anything but reads; the served tree is static.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed",
		"The test server only serves files.")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, domain.ErrorResponse{
		Status: status,
		Title:  title,
		Detail: detail,
	})
}
