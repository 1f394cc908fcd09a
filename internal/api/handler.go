// Package api provides HTTP handlers for the SmartFi API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/smartfi/internal/analysis"
	"github.com/ashureev/smartfi/internal/domain"
	"github.com/ashureev/smartfi/internal/fimcp"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Modes switches the operating mode.
type Modes interface {
	Current() domain.Session
	EnterDemo(ctx context.Context, phoneNumber string) error
	EnterDelegated(ctx context.Context)
}

// Data exposes the aggregate record and its fetch operations.
type Data interface {
	Snapshot() domain.Snapshot
	FetchAll(ctx context.Context)
	FetchOne(ctx context.Context, key domain.SourceKey)
	Subscribe() (<-chan domain.Snapshot, func())
}

// Analyzer answers analysis questions and keeps their history.
type Analyzer interface {
	AnalyzeDetailed(ctx context.Context, question string) analysis.Result
	History(ctx context.Context) ([]*domain.AnalysisMessage, error)
	ClearHistory(ctx context.Context) (int64, error)
}

// ToolLister lists the remote API's tools.
type ToolLister interface {
	ListTools(ctx context.Context) ([]fimcp.Tool, error)
}

// Deps are the handler's collaborators. AllowedOrigins are the browser
// origins allowed to open the data stream.
type Deps struct {
	Modes          Modes
	Data           Data
	Analyzer       Analyzer
	Tools          ToolLister
	Streams        *StreamManager
	AllowedOrigins []string
}

// Handler serves the UI-facing API.
type Handler struct {
	modes    Modes
	data     Data
	analyzer Analyzer
	tools    ToolLister
	streams  *StreamManager

	originPatterns []string
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	if d.Streams == nil {
		d.Streams = NewStreamManager()
	}
	return &Handler{
		modes:    d.Modes,
		data:     d.Data,
		analyzer: d.Analyzer,
		tools:    d.Tools,
		streams:  d.Streams,

		originPatterns: originHosts(d.AllowedOrigins),
	}
}

// RegisterRoutes registers the API and stream routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Get("/demo-profiles", h.GetDemoProfiles)
		r.Post("/mode/demo", h.EnterDemo)
		r.Post("/mode/delegated", h.EnterDelegated)
		r.Get("/data", h.GetData)
		r.Post("/data/refresh", h.RefreshAll)
		r.Post("/data/{source}/refresh", h.RefreshOne)
		r.Get("/tools", h.ListTools)
		r.Post("/analysis", h.Analyze)
		r.Get("/analysis/history", h.GetHistory)
		r.Delete("/analysis/history", h.ClearHistory)
	})
	r.Get("/ws/data", h.ServeStream)
}

// GetSession returns the session id and active mode.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.modes.Current())
}

// GetDemoProfiles returns the demo catalogue.
func (h *Handler) GetDemoProfiles(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"profiles": domain.DemoProfiles(),
	})
}

type enterDemoRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// EnterDemo switches to demo mode for the posted phone number and returns
// the session together with the fetched data.
func (h *Handler) EnterDemo(w http.ResponseWriter, r *http.Request) {
	var req enterDemoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.modes.EnterDemo(r.Context(), req.PhoneNumber); err != nil {
		if errors.Is(err, domain.ErrUnknownDemoProfile) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Failed to enter demo mode", "error", err, "phone", req.PhoneNumber)
		Error(w, http.StatusInternalServerError, "failed to enter demo mode")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session":  h.modes.Current(),
		"snapshot": h.data.Snapshot(),
	})
}

// EnterDelegated switches to delegated mode.
func (h *Handler) EnterDelegated(w http.ResponseWriter, r *http.Request) {
	h.modes.EnterDelegated(r.Context())
	JSON(w, http.StatusOK, map[string]interface{}{
		"session":  h.modes.Current(),
		"snapshot": h.data.Snapshot(),
	})
}

// GetData returns the aggregate record and fetch states.
func (h *Handler) GetData(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.data.Snapshot())
}

// RefreshAll fetches every source and returns the settled snapshot.
func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	h.data.FetchAll(r.Context())
	JSON(w, http.StatusOK, h.data.Snapshot())
}

// RefreshOne fetches a single source.
func (h *Handler) RefreshOne(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseSourceKey(chi.URLParam(r, "source"))
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}

	h.data.FetchOne(r.Context(), key)
	JSON(w, http.StatusOK, h.data.Snapshot())
}

// ListTools proxies tools/list.
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.tools.ListTools(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

type analyzeRequest struct {
	Question string `json:"question"`
}

// Analyze answers a question about the current data. It always succeeds for
// a well-formed request.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	JSON(w, http.StatusOK, h.analyzer.AnalyzeDetailed(r.Context(), req.Question))
}

// GetHistory returns the analysis history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.analyzer.History(r.Context())
	if err != nil {
		slog.Error("Failed to load analysis history", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []*domain.AnalysisMessage{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// ClearHistory deletes the analysis history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	n, err := h.analyzer.ClearHistory(r.Context())
	if err != nil {
		slog.Error("Failed to clear analysis history", "error", err)
		Error(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"deleted": n})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeUpstreamError maps remote API failures to gateway statuses. A login
// redirect carries its URL so the UI can open it.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var (
		loginErr   *fimcp.LoginRequiredError
		timeoutErr *fimcp.TimeoutError
	)
	switch {
	case errors.As(err, &loginErr):
		JSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "login_required",
			"loginUrl": loginErr.LoginURL,
		})
	case errors.As(err, &timeoutErr):
		Error(w, http.StatusGatewayTimeout, err.Error())
	default:
		slog.Warn("Remote API call failed", "error", err)
		Error(w, http.StatusBadGateway, err.Error())
	}
}

// decodeJSON decodes a bounded request body. An empty body leaves v zero.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
