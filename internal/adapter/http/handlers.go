package http

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/ForgeAgent/internal/port/broadcast"
	"github.com/Strob0t/ForgeAgent/internal/service"
)

// Handlers carries the server's collaborators into the HTTP layer.
type Handlers struct {
	Store   *service.Store
	Factory *service.Factory
	Runner  *service.Runner
	Logger  *slog.Logger

	// WSSink, when set, mirrors every session's events to the
	// WebSocket hub.
	WSSink func(sessionID string) broadcast.Sink

	// BaseCtx parents background runs so server shutdown cancels them.
	BaseCtx context.Context
}

type createSessionRequest struct {
	WorkspacePath string `json:"workspacePath"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// CreateSession handles POST /api/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createSessionRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.WorkspacePath) == "" {
		writeError(w, http.StatusBadRequest, "workspacePath is required")
		return
	}

	s, err := h.newSession(service.CreateParams{
		WorkspacePath: req.WorkspacePath,
		Provider:      req.Provider,
		Model:         req.Model,
	})
	if err != nil {
		writeFactoryError(w, err)
		return
	}

	h.Store.Put(s)
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: s.Info.ID})
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Store.Get(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, s.Info)
}

// ListSessions handles GET /api/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.List())
}

type resumeSessionRequest struct {
	WorkspacePath string `json:"workspacePath"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
}

// ResumeSession handles POST /api/sessions/{id}/resume: it rebuilds a
// runtime with the given id from the existing log.
func (h *Handlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[resumeSessionRequest](w, r)
	if !ok {
		return
	}

	s, err := h.newSession(service.CreateParams{
		WorkspacePath: req.WorkspacePath,
		Provider:      req.Provider,
		Model:         req.Model,
		SessionID:     id,
		Resume:        true,
	})
	if err != nil {
		writeFactoryError(w, err)
		return
	}

	h.Store.Put(s)
	writeJSON(w, http.StatusOK, s.Info)
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/sessions/{id}/chat: the runner is dispatched
// in the background and the request returns immediately.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Store.Get(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	req, ok := readJSON[chatRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if !s.TryRun() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	baseCtx := h.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	go func() {
		defer s.EndRun()
		defer func() {
			if p := recover(); p != nil {
				h.Logger.Error("runner panicked", "session_id", s.Info.ID, "panic", p)
			}
		}()
		h.Runner.Run(baseCtx, s, req.Message)
	}()

	w.WriteHeader(http.StatusAccepted)
}

type approvalRequest struct {
	Approved bool `json:"approved"`
}

// ResolveApproval handles POST /api/sessions/{id}/approvals/{callId}.
func (h *Handlers) ResolveApproval(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Store.Get(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	req, ok := readJSON[approvalRequest](w, r)
	if !ok {
		return
	}

	approver, ok := s.Approver.(*service.AsyncApprover)
	if !ok {
		writeError(w, http.StatusNotImplemented, "session does not support remote approval")
		return
	}
	if !approver.Resolve(urlParam(r, "callId"), req.Approved) {
		writeError(w, http.StatusNotFound, "no pending approval for call")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

type healthProvider struct {
	Name             string `json:"name"`
	Model            string `json:"model"`
	APIKeyConfigured bool   `json:"apiKeyConfigured"`
}

type healthWorkspace struct {
	SessionID string `json:"sessionId"`
	Root      string `json:"root"`
	OK        bool   `json:"ok"`
}

type healthResponse struct {
	Status         string            `json:"status"`
	Provider       healthProvider    `json:"provider"`
	ActiveSessions int               `json:"activeSessions"`
	Workspaces     []healthWorkspace `json:"workspaces"`
}

// Health handles GET /health: overall status plus the configured
// provider and the workspace roots of active sessions.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	name, model, keyConfigured := h.Factory.ProviderInfo()

	infos := h.Store.List()
	workspaces := make([]healthWorkspace, 0, len(infos))
	allRootsOK := true
	for _, info := range infos {
		fi, err := os.Stat(info.WorkspaceRoot)
		ok := err == nil && fi.IsDir()
		allRootsOK = allRootsOK && ok
		workspaces = append(workspaces, healthWorkspace{
			SessionID: info.ID,
			Root:      info.WorkspaceRoot,
			OK:        ok,
		})
	}

	status := "ok"
	if !keyConfigured || !allRootsOK {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:         status,
		Provider:       healthProvider{Name: name, Model: model, APIKeyConfigured: keyConfigured},
		ActiveSessions: len(infos),
		Workspaces:     workspaces,
	})
}

func (h *Handlers) newSession(params service.CreateParams) (*service.Session, error) {
	if params.SessionID == "" {
		params.SessionID = uuid.NewString()
	}
	if h.WSSink != nil {
		params.ExtraSink = h.WSSink(params.SessionID)
	}
	return h.Factory.NewSession(params)
}
