package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/pkg/pagination"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orderService    service.OrderService
	approvalService service.ApprovalService
	guard           middleware.Guard
	submitLimit     gin.HandlerFunc
}

func NewOrderHandler(orderService service.OrderService, approvalService service.ApprovalService, guard middleware.Guard, submitLimit gin.HandlerFunc) *OrderHandler {
	if submitLimit == nil {
		submitLimit = func(c *gin.Context) { c.Next() }
	}
	return &OrderHandler{orderService: orderService, approvalService: approvalService, guard: guard, submitLimit: submitLimit}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/orders")
	orders.Use(h.guard())
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
	}

	staff := router.Group("/api/admin/orders")
	staff.Use(h.guard(model.RoleAdmin, model.RoleSale))
	{
		staff.PUT("/:id/status", h.submitLimit, h.UpdateOrderStatus)
		staff.PUT("/:id/pay", h.submitLimit, h.MarkAsPaid)
		staff.PUT("/:id/deliver", h.submitLimit, h.MarkAsDelivered)
		staff.DELETE("/:id", h.submitLimit, h.DeleteOrder)
	}
}

// CreateOrder handles customer checkout
// @Summary      Place order
// @Description  Snapshots product prices; shipping is free over 100, tax is 15%
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateOrderRequest  true  "Cart"
// @Success      201      {object}  response.Response{data=service.OrderResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	a, ok := actor(c)
	if !ok {
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), a, req)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// ListOrders lists orders; customers only see their own
// @Summary      List orders
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        is_paid       query  bool  false  "Filter by payment state"
// @Param        is_delivered  query  bool  false  "Filter by delivery state"
// @Param        page          query  int   false  "Page number (default 1)"
// @Param        limit         query  int   false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page}
// @Router       /api/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	filter := repository.OrderFilter{
		IsPaid:      boolQuery(c, "is_paid"),
		IsDelivered: boolQuery(c, "is_delivered"),
		Page:        p.Page,
		Limit:       p.Limit,
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), a, filter)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{Items: orders, Total: total, Page: p.Page, Limit: p.Limit}))
}

// GetOrder returns one order with its items
// @Summary      Get order
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.OrderResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), a, id)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// UpdateOrderStatus submits UPDATE_ORDER_STATUS
// @Summary      Update order status
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                             true  "Order ID"
// @Param        payload  body      service.UpdateOrderStatusMutation  true  "paid or delivered"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Router       /api/admin/orders/{id}/status [put]
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload json.RawMessage
	if !bindJSON(c, &payload) {
		return
	}
	submit(c, h.approvalService, model.ReqUpdateOrderStatus, &id, payload)
}

// MarkAsPaid submits MARK_AS_PAID
// @Summary      Mark order paid
// @Description  Captures payment: decrements stock and records SALE movements
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true   "Order ID"
// @Param        payload  body      service.MarkAsPaidMutation  false  "Payment reference"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Router       /api/admin/orders/{id}/pay [put]
func (h *OrderHandler) MarkAsPaid(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload service.MarkAsPaidMutation
	if c.Request.ContentLength > 0 && !bindJSON(c, &payload) {
		return
	}
	submit(c, h.approvalService, model.ReqMarkAsPaid, &id, payload)
}

// MarkAsDelivered submits MARK_AS_DELIVERED
// @Summary      Mark order delivered
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.SubmitResult}
// @Success      202  {object}  response.Response{data=service.SubmitResult}
// @Router       /api/admin/orders/{id}/deliver [put]
func (h *OrderHandler) MarkAsDelivered(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	submit(c, h.approvalService, model.ReqMarkAsDelivered, &id, service.MarkAsDeliveredMutation{})
}

// DeleteOrder submits DELETE_ORDER
// @Summary      Delete order
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.SubmitResult}
// @Success      202  {object}  response.Response{data=service.SubmitResult}
// @Router       /api/admin/orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	submit(c, h.approvalService, model.ReqDeleteOrder, &id, service.DeleteOrderMutation{})
}

func boolQuery(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}
