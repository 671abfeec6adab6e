// Package rest exposes the synchronization operations over HTTP.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/history"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/relink"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/sync"
	"github.com/tdnguyen0403/confluence-jira-task-sync/pkg/types"
)

// Handler handles REST API requests.
type Handler struct {
	sync     *sync.Orchestrator
	undo     *sync.UndoOrchestrator
	relinker *relink.Relinker
	store    history.Store
	apiKey   string
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new REST handler.
func NewHandler(syncOrc *sync.Orchestrator, undoOrc *sync.UndoOrchestrator, relinker *relink.Relinker, store history.Store, apiKey string, logger *zap.Logger) *Handler {
	return &Handler{
		sync:     syncOrc,
		undo:     undoOrc,
		relinker: relinker,
		store:    store,
		apiKey:   apiKey,
		validate: validator.New(),
		logger:   logger,
	}
}

// UndoRequest is the request body for POST /undo. Either a request id from
// a prior sync run or inline undo items must be provided.
type UndoRequest struct {
	RequestID string           `json:"request_id"`
	Items     []types.UndoItem `json:"items"`
}

// SyncProjectRequest is the request body for POST /sync_project.
type SyncProjectRequest struct {
	ProjectPageURL string `json:"project_page_url" validate:"required,url"`
	ProjectKey     string `json:"project_key" validate:"required"`
}

// RegisterRoutes registers REST API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(h.requireAPIKey)
	r.Post("/sync", h.Sync)
	r.Post("/undo", h.Undo)
	r.Post("/sync_project", h.SyncProject)
}

// Sync handles POST /sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req sync.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.sync.Run(r.Context(), req)
	if err != nil {
		h.writeRunError(w, err)
		return
	}
	result.RequestID = uuid.NewString()

	if err := h.store.SaveRun(r.Context(), result.RequestID, result.Creations); err != nil {
		// The sync itself succeeded; a missing undo trail is reported, not
		// converted into a failure.
		h.logger.Error("failed to persist run results", zap.Error(err),
			zap.String("request_id", result.RequestID))
	}
	writeJSON(w, http.StatusOK, result)
}

// Undo handles POST /undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	var req UndoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := req.Items
	fromStore := false
	if len(items) == 0 && req.RequestID != "" {
		fromStore = true
		stored, err := h.store.GetRun(r.Context(), req.RequestID)
		if errors.Is(err, history.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			h.logger.Error("failed to load run results", zap.Error(err),
				zap.String("request_id", req.RequestID))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, res := range stored {
			items = append(items, types.UndoItem{
				PageID:      res.Task.PageID,
				PageVersion: res.Task.PageVersion,
				IssueKey:    res.IssueKey,
				RequestUser: res.RequestUser,
			})
		}
	}

	result, err := h.undo.Run(r.Context(), items)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	// Only a stored run that actually supplied the items is consumed; inline
	// items leave the recorded run untouched for a later undo.
	if fromStore {
		if err := h.store.DeleteRun(r.Context(), req.RequestID); err != nil {
			h.logger.Error("failed to delete consumed run results", zap.Error(err),
				zap.String("request_id", req.RequestID))
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// SyncProject handles POST /sync_project.
func (h *Handler) SyncProject(w http.ResponseWriter, r *http.Request) {
	var req SyncProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.relinker.Run(r.Context(), req.ProjectPageURL, req.ProjectKey)
	if err != nil {
		h.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated_pages": results})
}

// writeRunError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeRunError(w http.ResponseWriter, err error) {
	var syncErr *sync.SyncError
	switch {
	case errors.Is(err, sync.ErrInvalidInput), errors.Is(err, sync.ErrMissingRequiredData):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &syncErr):
		h.logger.Error("sync run aborted", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		h.logger.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// requireAPIKey rejects requests without the configured X-API-Key header.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey == "" || r.Header.Get("X-API-Key") != h.apiKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
