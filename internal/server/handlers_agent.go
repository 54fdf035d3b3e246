package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
	"github.com/gearbox-hq/gearbox/internal/agent/tools"
	"github.com/gearbox-hq/gearbox/internal/auth"
	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
)

// HandleCreateAccount handles POST /v1/accounts (admin).
func (h *Handlers) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAccountRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateAccountID(req.AccountID); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	switch req.Role {
	case model.RoleAdmin, model.RoleMember, model.RoleClient:
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "role must be admin, member, or client")
		return
	}
	if len(req.APIKey) < 16 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "api_key must be at least 16 characters")
		return
	}

	hash, err := auth.HashAPIKey(req.APIKey)
	if err != nil {
		h.logger.Error("api key hashing failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return
	}

	account, err := h.db.CreateAccount(r.Context(), model.Account{
		AccountID:  req.AccountID,
		OrgID:      ctxutil.OrgID(r.Context()),
		Name:       req.Name,
		Email:      req.Email,
		Role:       req.Role,
		APIKeyHash: &hash,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, account)
}

// HandleListAccounts handles GET /v1/accounts (admin).
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	accounts, err := h.db.ListAccounts(r.Context(), ctxutil.OrgID(r.Context()), limit, offset)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeList(w, r, accounts, len(accounts), limit, offset)
}

// HandleDeleteAccount handles DELETE /v1/accounts/{account_id} (admin).
func (h *Handlers) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "account_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid account id")
		return
	}
	if err := h.db.DeleteAccount(r.Context(), ctxutil.OrgID(r.Context()), id); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSupervisorRun handles POST /v1/supervisor/run. The response is the
// orchestration envelope: step failures and top-level failures both come
// back with HTTP 200 and are distinguished by the envelope's success flag.
func (h *Handlers) HandleSupervisorRun(w http.ResponseWriter, r *http.Request) {
	var req model.SupervisorRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "task is required")
		return
	}
	if len(req.Task) > model.MaxTaskLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "task too long")
		return
	}

	res, err := h.supervisorSvc.Run(r.Context(), ctxutil.OrgID(r.Context()), req.Task)
	if err != nil {
		if errors.Is(err, tools.ErrUnauthorized) {
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "org mismatch")
			return
		}
		h.logger.Error("supervisor run failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleInvokeTool handles POST /v1/tools/{name}: run a single registry tool
// directly. Unknown names are 404; tool failures ride in the envelope.
func (h *Handlers) HandleInvokeTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	fn, err := h.registry.Lookup(name)
	if err != nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown tool")
		return
	}

	var req model.ToolInvokeRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}

	res, err := fn(r.Context(), ctxutil.OrgID(r.Context()), req.Args)
	if err != nil {
		if errors.Is(err, tools.ErrUnauthorized) {
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "org mismatch")
			return
		}
		h.logger.Error("tool invocation failed", "tool", name, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleListTools handles GET /v1/tools: the registry roster by category.
func (h *Handlers) HandleListTools(w http.ResponseWriter, r *http.Request) {
	out := map[string][]string{}
	for _, c := range []registry.Category{
		registry.CategoryPerception, registry.CategoryScheduling, registry.CategoryCommunication,
		registry.CategoryAnalysis, registry.CategoryCommerce, registry.CategoryTraining,
	} {
		for name := range h.registry.Category(c) {
			out[string(c)] = append(out[string(c)], name)
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleListTrajectories handles GET /v1/trajectories?agent=.
func (h *Handlers) HandleListTrajectories(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var agentName *string
	if v := r.URL.Query().Get("agent"); v != "" {
		agentName = &v
	}

	trajectories, err := h.db.ListTrajectories(r.Context(), ctxutil.OrgID(r.Context()), agentName, limit, offset)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeList(w, r, trajectories, len(trajectories), limit, offset)
}

// HandleGetTrajectory handles GET /v1/trajectories/{trajectory_id}.
func (h *Handlers) HandleGetTrajectory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "trajectory_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid trajectory id")
		return
	}
	trajectory, err := h.db.GetTrajectory(r.Context(), ctxutil.OrgID(r.Context()), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, trajectory)
}

// HandleListOperationLogs handles GET /v1/operation-logs?source= (admin).
func (h *Handlers) HandleListOperationLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var source *string
	if v := r.URL.Query().Get("source"); v != "" {
		source = &v
	}

	logs, err := h.db.ListOperationLogs(r.Context(), ctxutil.OrgID(r.Context()), source, limit, offset)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeList(w, r, logs, len(logs), limit, offset)
}
