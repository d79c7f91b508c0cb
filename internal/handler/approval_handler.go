package handler

import (
	"net/http"
	"strings"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/service"
	appErrors "storefront/pkg/errors"
	"storefront/pkg/pagination"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ResolveRequest struct {
	Note string `json:"note" binding:"max=1000"`
}

type ApprovalHandler struct {
	approvalService service.ApprovalService
	guard           middleware.Guard
	submitLimit     gin.HandlerFunc
}

func NewApprovalHandler(approvalService service.ApprovalService, guard middleware.Guard, submitLimit gin.HandlerFunc) *ApprovalHandler {
	if submitLimit == nil {
		submitLimit = func(c *gin.Context) { c.Next() }
	}
	return &ApprovalHandler{approvalService: approvalService, guard: guard, submitLimit: submitLimit}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	approvals.Use(h.guard(staffRoles...))
	{
		approvals.GET("", h.ListApprovalRequests)
		approvals.POST("", h.submitLimit, h.SubmitRequest)
		approvals.GET("/types", h.ProposableTypes)
		approvals.GET("/pending", h.PendingIndex)
		approvals.GET("/:id", h.GetApprovalRequest)
		approvals.PUT("/:id/approve", h.guard(model.RoleAdmin), h.ApproveRequest)
		approvals.PUT("/:id/reject", h.guard(model.RoleAdmin), h.RejectRequest)
	}
}

// ListApprovalRequests returns approval requests, newest first
// @Summary      List approval requests
// @Description  Admins see every request; other staff only see their own submissions
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        status        query  string  false  "pending, approved or rejected"
// @Param        type          query  string  false  "Request type"
// @Param        requested_by  query  string  false  "Requester ID (admin only)"
// @Param        page          query  int     false  "Page number (default 1)"
// @Param        limit         query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page}
// @Failure      401  {object}  response.Response
// @Router       /api/approvals [get]
func (h *ApprovalHandler) ListApprovalRequests(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	filter := repository.ApprovalFilter{
		Status: c.Query("status"),
		Type:   model.RequestType(c.Query("type")),
		Page:   p.Page,
		Limit:  p.Limit,
	}
	if !service.CanReview(a.Role) {
		filter.RequestedBy = &a.ID
	} else if raw := c.Query("requested_by"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "invalid requested_by"))
			return
		}
		filter.RequestedBy = &id
	}

	items, total, err := h.approvalService.List(c.Request.Context(), filter)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{Items: items, Total: total, Page: p.Page, Limit: p.Limit}))
}

// GetApprovalRequest returns a single request with requester and reviewer names
// @Summary      Get approval request
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/approvals/{id} [get]
func (h *ApprovalHandler) GetApprovalRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	req, err := h.approvalService.Get(c.Request.Context(), id)
	if err != nil {
		response.Abort(c, err)
		return
	}
	if !service.CanReview(a.Role) && req.RequestedBy != a.ID.String() {
		response.Abort(c, appErrors.Clone(appErrors.ErrNotFound, "approval request not found"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// SubmitRequest submits any privileged mutation
// @Summary      Submit a privileged mutation
// @Description  Admins apply immediately (200); proposing roles queue a pending request (202)
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SubmitRequest  true  "Mutation"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals [post]
func (h *ApprovalHandler) SubmitRequest(c *gin.Context) {
	var req service.SubmitRequest
	if !bindJSON(c, &req) {
		return
	}
	a, ok := actor(c)
	if !ok {
		return
	}

	result, err := h.approvalService.Submit(c.Request.Context(), a, req)
	if err != nil {
		response.Abort(c, err)
		return
	}
	writeSubmitResult(c, result)
}

// ProposableTypes lists the request types the caller may submit
// @Summary      Request types available to the caller
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/approvals/types [get]
func (h *ApprovalHandler) ProposableTypes(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	types := service.ProposableTypes(a.Role)
	if service.CanApplyDirectly(a.Role) {
		types = model.AllRequestTypes
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"role":         a.Role,
		"direct_apply": service.CanApplyDirectly(a.Role),
		"types":        types,
	}))
}

// PendingIndex reports which targets have an outstanding request
// @Summary      Pending approval index
// @Description  Maps each target id to its pending request; targets without one are omitted
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        target_ids  query  string  true  "Comma separated target IDs"
// @Success      200  {object}  response.Response{data=object}
// @Failure      400  {object}  response.Response
// @Router       /api/approvals/pending [get]
func (h *ApprovalHandler) PendingIndex(c *gin.Context) {
	raw := strings.Split(c.Query("target_ids"), ",")
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		id, err := uuid.Parse(r)
		if err != nil {
			response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "invalid target id "+r))
			return
		}
		ids = append(ids, id)
	}

	index, err := h.approvalService.PendingIndex(c.Request.Context(), ids)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, index))
}

// ApproveRequest approves a pending approval request and replays its mutation
// @Summary      Approve request
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string          true   "Request ID"
// @Param        payload  body      ResolveRequest  false  "Reviewer note"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/approve [put]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	h.resolve(c, service.DecisionApprove)
}

// RejectRequest rejects a pending approval request
// @Summary      Reject request
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string          true   "Request ID"
// @Param        payload  body      ResolveRequest  false  "Reviewer note"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/reject [put]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	h.resolve(c, service.DecisionReject)
}

func (h *ApprovalHandler) resolve(c *gin.Context, decision service.Decision) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	// The note is optional, an empty body is fine
	var req ResolveRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	result, err := h.approvalService.Resolve(c.Request.Context(), a, id, decision, req.Note)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
