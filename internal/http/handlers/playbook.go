package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos"
	"github.com/upliftcs/upliftcs-backend/internal/http/response"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/engine"
	"github.com/upliftcs/upliftcs-backend/internal/services"
)

type PlaybookHandler struct {
	playbooks services.PlaybookService
}

func NewPlaybookHandler(playbooks services.PlaybookService) *PlaybookHandler {
	return &PlaybookHandler{playbooks: playbooks}
}

// GET /api/playbooks
func (h *PlaybookHandler) ListPlaybooks(c *gin.Context) {
	list, err := h.playbooks.ListPlaybooks(c.Request.Context(), repos.PlaybookFilter{
		Category:   c.Query("category"),
		ActiveOnly: c.Query("active") == "true",
	})
	if err != nil {
		response.RespondServiceError(c, "list_playbooks_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"playbooks": list})
}

// POST /api/playbooks
func (h *PlaybookHandler) CreatePlaybook(c *gin.Context) {
	var req engine.Definition
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.playbooks.CreatePlaybook(c.Request.Context(), req)
	if err != nil {
		response.RespondServiceError(c, "create_playbook_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"playbook": p})
}

// GET /api/playbooks/:id
func (h *PlaybookHandler) GetPlaybook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_playbook_id", err)
		return
	}
	view, err := h.playbooks.GetPlaybook(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "playbook_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"playbook": view})
}

// PUT /api/playbooks/:id
func (h *PlaybookHandler) UpdatePlaybook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_playbook_id", err)
		return
	}
	var req services.PlaybookUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.playbooks.UpdatePlaybook(c.Request.Context(), id, req)
	if err != nil {
		response.RespondServiceError(c, "update_playbook_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"playbook": p})
}

type customerIDsRequest struct {
	CustomerIDs []uuid.UUID `json:"customer_ids"`
}

// POST /api/playbooks/:id/trigger
func (h *PlaybookHandler) Trigger(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_playbook_id", err)
		return
	}
	var req customerIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	report, err := h.playbooks.TriggerForCustomers(c.Request.Context(), id, req.CustomerIDs)
	if err != nil {
		response.RespondServiceError(c, "trigger_playbook_failed", err)
		return
	}
	response.RespondOK(c, report)
}

// POST /api/playbooks/evaluate-triggers
// Body is optional; an empty customer list evaluates every customer.
func (h *PlaybookHandler) EvaluateTriggers(c *gin.Context) {
	var req customerIDsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	report, err := h.playbooks.EvaluateAll(c.Request.Context(), req.CustomerIDs)
	if err != nil {
		response.RespondServiceError(c, "evaluate_triggers_failed", err)
		return
	}
	response.RespondOK(c, report)
}

// POST /api/playbooks/execute-pending
func (h *PlaybookHandler) ExecutePending(c *gin.Context) {
	res, err := h.playbooks.ExecutePending(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "execute_pending_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"sweep": res, "executed_count": res.Processed()})
}

// POST /api/playbooks/initialize-defaults
func (h *PlaybookHandler) InitializeDefaults(c *gin.Context) {
	report, err := h.playbooks.InitializeDefaults(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "initialize_defaults_failed", err)
		return
	}
	response.RespondOK(c, report)
}

// GET /api/playbooks/performance
func (h *PlaybookHandler) Performance(c *gin.Context) {
	id, err := optionalUUID(c, "playbook_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_playbook_id", err)
		return
	}
	perf, err := h.playbooks.Performance(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "performance_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"performance": perf})
}
