package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos"
	"github.com/upliftcs/upliftcs-backend/internal/http/response"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/engine"
	"github.com/upliftcs/upliftcs-backend/internal/services"
)

type ExecutionHandler struct {
	playbooks services.PlaybookService
}

func NewExecutionHandler(playbooks services.PlaybookService) *ExecutionHandler {
	return &ExecutionHandler{playbooks: playbooks}
}

// GET /api/executions
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	customerID, err := optionalUUID(c, "customer_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_customer_id", err)
		return
	}
	playbookID, err := optionalUUID(c, "playbook_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_playbook_id", err)
		return
	}
	p := readPage(c)
	list, total, err := h.playbooks.ListExecutions(c.Request.Context(), repos.ExecutionFilter{
		Status:     c.Query("status"),
		CustomerID: customerID,
		PlaybookID: playbookID,
		Limit:      p.PerPage,
		Offset:     p.offset(),
	})
	if err != nil {
		response.RespondServiceError(c, "list_executions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"executions": list, "pagination": p.result(total)})
}

// GET /api/executions/:id
func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_execution_id", err)
		return
	}
	e, err := h.playbooks.GetExecution(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "execution_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"execution": e})
}

// POST /api/executions/:id/pause
func (h *ExecutionHandler) Pause(c *gin.Context) {
	h.transition(c, "pause_failed", h.playbooks.Pause)
}

// POST /api/executions/:id/resume
func (h *ExecutionHandler) Resume(c *gin.Context) {
	h.transition(c, "resume_failed", h.playbooks.Resume)
}

type transitionFunc = func(ctx context.Context, id uuid.UUID) (engine.TransitionResult, error)

func (h *ExecutionHandler) transition(c *gin.Context, code string, fn transitionFunc) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_execution_id", err)
		return
	}
	res, err := fn(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, code, err)
		return
	}
	if !res.OK {
		// Refused transitions leave the execution untouched.
		response.RespondError(c, http.StatusConflict, code, errors.New(res.Reason))
		return
	}
	response.RespondOK(c, res)
}
