package handler

import (
	"net/http"
	"strconv"

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

type StockHandler struct {
	ledgerService service.LedgerService
	guard         middleware.Guard
}

func NewStockHandler(ledgerService service.LedgerService, guard middleware.Guard) *StockHandler {
	return &StockHandler{ledgerService: ledgerService, guard: guard}
}

func (h *StockHandler) RegisterRoutes(router *gin.RouterGroup) {
	stock := router.Group("/api/admin/stock")
	stock.Use(h.guard(model.RoleAdmin, model.RoleStocker))
	{
		stock.GET("/movements", h.ListMovements)
		stock.POST("/reconcile", h.guard(model.RoleAdmin), h.Reconcile)
		stock.GET("/reconciliations", h.guard(model.RoleAdmin), h.ListReconciliations)
	}
}

// ListMovements pages through the stock ledger
// @Summary      Stock movement history
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        product_id  query  string  false  "Product ID"
// @Param        type        query  string  false  "RESTOCK, SALE or ADJUSTMENT"
// @Param        from        query  string  false  "From (RFC3339)"
// @Param        to          query  string  false  "To (RFC3339)"
// @Param        page        query  int     false  "Page number (default 1)"
// @Param        limit       query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page}
// @Failure      400  {object}  response.Response
// @Router       /api/admin/stock/movements [get]
func (h *StockHandler) ListMovements(c *gin.Context) {
	p := pagination.Parse(c)
	rng, err := pagination.ParseRange(c, "from", "to")
	if err != nil {
		response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "invalid date range, expected RFC3339"))
		return
	}

	filter := repository.MovementFilter{
		Type:  c.Query("type"),
		From:  rng.From,
		To:    rng.To,
		Page:  p.Page,
		Limit: p.Limit,
	}
	if raw := c.Query("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "invalid product_id"))
			return
		}
		filter.ProductID = &id
	}

	items, total, err := h.ledgerService.List(c.Request.Context(), filter)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{Items: items, Total: total, Page: p.Page, Limit: p.Limit}))
}

// Reconcile compares every product's stock against its ledger
// @Summary      Reconcile stock ledger
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.ReconcileResult}
// @Router       /api/admin/stock/reconcile [post]
func (h *StockHandler) Reconcile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	result, err := h.ledgerService.Reconcile(c.Request.Context(), &a.ID)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListReconciliations returns drift rows of one run or the latest ones
// @Summary      Reconciliation reports
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        correlation_id  query  string  false  "Run ID"
// @Param        limit           query  int     false  "Max rows (default 50)"
// @Success      200  {object}  response.Response{data=[]model.ReconciliationReport}
// @Router       /api/admin/stock/reconciliations [get]
func (h *StockHandler) ListReconciliations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	reports, err := h.ledgerService.Reports(c.Request.Context(), c.Query("correlation_id"), limit)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, reports))
}
