package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/service"
	"storefront/pkg/pagination"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	guard        middleware.Guard
}

func NewAuditHandler(auditService service.AuditService, guard middleware.Guard) *AuditHandler {
	return &AuditHandler{auditService: auditService, guard: guard}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(h.guard(model.RoleAdmin)) // Protect history logs
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated records with users preloaded
// @Summary      Get audit logs
// @Description  Submissions, direct applies, approvals, rejections and reconciliations
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action     query     string  false  "Action filter"
// @Param        entity_id  query     string  false  "Entity filter"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), c.Query("action"), c.Query("entity_id"), p.Page, p.Limit)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{Items: logs, Total: total, Page: p.Page, Limit: p.Limit}))
}
