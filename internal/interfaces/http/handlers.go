package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/application/service"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflows service.WorkflowConfigService
	requests  service.RequestService
	sync      service.SyncService
	export    service.ExportService
	health    HealthFunc
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		workflows: services.Workflows,
		requests:  services.Requests,
		sync:      services.Sync,
		export:    services.Export,
		health:    health,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

type moveStepBody struct {
	Direction service.Direction `json:"direction"`
}

type approversBody struct {
	ApproverIDs []string `json:"approverIds"`
}

type resetBody struct {
	Confirm bool `json:"confirm"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.health != nil {
		resp.Checks = make(map[string]string)
		for name, err := range h.health(c.Request.Context()) {
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	c.JSON(status, resp)
}

// GetWorkflow handles GET /document-types/:docType/workflow
func (h *Handlers) GetWorkflow(c *gin.Context) {
	def, err := h.workflows.GetWorkflow(c.Request.Context(), c.Param("docType"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, def)
}

// AddStep handles POST /document-types/:docType/workflow/steps
func (h *Handlers) AddStep(c *gin.Context) {
	var draft service.StepDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, fmt.Sprintf("invalid step: %v", err))
		return
	}

	def, err := h.workflows.AddStep(c.Request.Context(), c.Param("docType"), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, def)
}

// UpdateStep handles PATCH /document-types/:docType/workflow/steps/:stepId
func (h *Handlers) UpdateStep(c *gin.Context) {
	var patch service.StepPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, fmt.Sprintf("invalid step patch: %v", err))
		return
	}

	def, err := h.workflows.UpdateStep(c.Request.Context(), c.Param("docType"), c.Param("stepId"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, def)
}

// RemoveStep handles DELETE /document-types/:docType/workflow/steps/:stepId
func (h *Handlers) RemoveStep(c *gin.Context) {
	def, err := h.workflows.RemoveStep(c.Request.Context(), c.Param("docType"), c.Param("stepId"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, def)
}

// MoveStep handles POST /document-types/:docType/workflow/steps/:stepId/move
func (h *Handlers) MoveStep(c *gin.Context) {
	var body moveStepBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Sprintf("invalid move: %v", err))
		return
	}

	def, err := h.workflows.MoveStep(c.Request.Context(), c.Param("docType"), c.Param("stepId"), body.Direction)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, def)
}

// AssignApprovers handles PUT /document-types/:docType/workflow/steps/:stepId/approvers
func (h *Handlers) AssignApprovers(c *gin.Context) {
	var body approversBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Sprintf("invalid approvers: %v", err))
		return
	}

	def, err := h.workflows.AssignApprovers(c.Request.Context(), c.Param("docType"), c.Param("stepId"), body.ApproverIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, def)
}

// ResetToDefault handles POST /document-types/:docType/workflow/reset
func (h *Handlers) ResetToDefault(c *gin.Context) {
	var body resetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Sprintf("invalid reset: %v", err))
		return
	}

	def, err := h.workflows.ResetToDefault(c.Request.Context(), c.Param("docType"), body.Confirm)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, def)
}

// Sync handles POST /sync
func (h *Handlers) Sync(c *gin.Context) {
	report, err := h.sync.SyncAssignments(c.Request.Context(), service.SyncTriggerManual)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}

// ExportWorkflows handles GET /workflows/export?documentTypeId=a,b
func (h *Handlers) ExportWorkflows(c *gin.Context) {
	var ids []string
	for _, v := range c.QueryArray("documentTypeId") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	filename := fmt.Sprintf("workflows-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.export.ExportWorkflows(c.Request.Context(), ids, c.Writer); err != nil {
		h.logger.Error("Workflow export failed", "error", err)
		if !c.Writer.Written() {
			c.Header("Content-Disposition", "")
			respondError(c, err)
		}
		return
	}
}

// ListApproverAssignments handles GET /approvers/:userId/assignments
func (h *Handlers) ListApproverAssignments(c *gin.Context) {
	rows, err := h.sync.ApproverAssignments(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []*entity.ApproverAssignment{}
	}
	ok(c, http.StatusOK, rows)
}

// CreateRequest handles POST /requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var in service.CreateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}

	view, err := h.requests.CreateRequest(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, view)
}

// ListRequests handles GET /requests
func (h *Handlers) ListRequests(c *gin.Context) {
	filter := port.RequestFilter{DocumentTypeID: c.Query("documentTypeId")}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	list, err := h.requests.ListRequests(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []*entity.DocumentRequest{}
	}
	ok(c, http.StatusOK, list)
}

// GetRequest handles GET /requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	view, err := h.requests.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// AdvanceRequest handles POST /requests/:id/advance
func (h *Handlers) AdvanceRequest(c *gin.Context) {
	view, err := h.requests.AdvanceRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// ApproveRequest handles POST /requests/:id/approve
func (h *Handlers) ApproveRequest(c *gin.Context) {
	view, err := h.requests.ApproveRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// RejectRequest handles POST /requests/:id/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	var body rejectBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, fmt.Sprintf("invalid reject: %v", err))
			return
		}
	}

	view, err := h.requests.RejectRequest(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}
