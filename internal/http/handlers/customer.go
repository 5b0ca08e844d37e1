package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos"
	"github.com/upliftcs/upliftcs-backend/internal/http/response"
	"github.com/upliftcs/upliftcs-backend/internal/services"
)

type CustomerHandler struct {
	customers services.CustomerService
}

func NewCustomerHandler(customers services.CustomerService) *CustomerHandler {
	return &CustomerHandler{customers: customers}
}

// GET /api/customers
func (h *CustomerHandler) ListCustomers(c *gin.Context) {
	p := readPage(c)
	list, total, err := h.customers.List(c.Request.Context(), repos.CustomerFilter{
		RiskLevel: c.Query("risk_level"),
		Limit:     p.PerPage,
		Offset:    p.offset(),
	})
	if err != nil {
		response.RespondServiceError(c, "list_customers_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"customers": list, "pagination": p.result(total)})
}

// POST /api/customers
func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	var req services.CustomerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	customer, err := h.customers.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondServiceError(c, "create_customer_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"customer": customer})
}

// GET /api/customers/:id
func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_customer_id", err)
		return
	}
	customer, err := h.customers.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "customer_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"customer": customer})
}

// POST /api/customers/:id/health
func (h *CustomerHandler) RecalculateHealth(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_customer_id", err)
		return
	}
	report, err := h.customers.RecalculateHealth(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "recalculate_health_failed", err)
		return
	}
	response.RespondOK(c, report)
}

type activityRequest struct {
	ActivityType string         `json:"activity_type"`
	ActivityData map[string]any `json:"activity_data"`
}

// POST /api/customers/:id/activities
func (h *CustomerHandler) RecordActivity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_customer_id", err)
		return
	}
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	activity, err := h.customers.RecordActivity(c.Request.Context(), id, req.ActivityType, req.ActivityData)
	if err != nil {
		response.RespondServiceError(c, "record_activity_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"activity": activity})
}

// GET /api/customers/:id/actions
func (h *CustomerHandler) ListActions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_customer_id", err)
		return
	}
	actions, err := h.customers.ListActions(c.Request.Context(), id, c.Query("status"))
	if err != nil {
		response.RespondServiceError(c, "list_actions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"actions": actions})
}

// POST /api/customers/:id/actions
func (h *CustomerHandler) CreateAction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_customer_id", err)
		return
	}
	var req services.ActionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	action, err := h.customers.CreateAction(c.Request.Context(), id, req)
	if err != nil {
		response.RespondServiceError(c, "create_action_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"action": action})
}

// PUT /api/actions/:id
func (h *CustomerHandler) UpdateAction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_action_id", err)
		return
	}
	var req services.ActionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	action, err := h.customers.UpdateAction(c.Request.Context(), id, req)
	if err != nil {
		response.RespondServiceError(c, "update_action_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"action": action})
}

// GET /api/dashboard/summary
func (h *CustomerHandler) DashboardSummary(c *gin.Context) {
	summary, err := h.customers.DashboardSummary(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "dashboard_summary_failed", err)
		return
	}
	response.RespondOK(c, summary)
}
