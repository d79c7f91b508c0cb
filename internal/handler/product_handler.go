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

type ProductHandler struct {
	productService  service.ProductService
	approvalService service.ApprovalService
	guard           middleware.Guard
	submitLimit     gin.HandlerFunc
}

func NewProductHandler(productService service.ProductService, approvalService service.ApprovalService, guard middleware.Guard, submitLimit gin.HandlerFunc) *ProductHandler {
	if submitLimit == nil {
		submitLimit = func(c *gin.Context) { c.Next() }
	}
	return &ProductHandler{productService: productService, approvalService: approvalService, guard: guard, submitLimit: submitLimit}
}

func (h *ProductHandler) RegisterRoutes(router *gin.RouterGroup) {
	public := router.Group("/api/products")
	{
		public.GET("", h.ListProducts)
		public.GET("/:slug", h.GetProduct)
	}

	admin := router.Group("/api/admin/products")
	admin.Use(h.guard(model.RoleAdmin, model.RoleStocker))
	{
		admin.GET("", h.ListProductsForStaff)
		admin.GET("/:slug", h.GetProductForStaff)
		admin.POST("", h.submitLimit, h.CreateProduct)
		admin.PUT("/:id", h.submitLimit, h.UpdateProduct)
		admin.PUT("/:id/stock", h.submitLimit, h.UpdateProductStock)
		admin.POST("/:id/restock", h.submitLimit, h.RequestRestock)
		admin.DELETE("/:id", h.submitLimit, h.DeleteProduct)
	}
}

func productFilter(c *gin.Context) repository.ProductFilter {
	p := pagination.Parse(c)
	return repository.ProductFilter{
		Search:   c.Query("q"),
		Category: c.Query("category"),
		Page:     p.Page,
		Limit:    p.Limit,
	}
}

// ListProducts handles the public catalog listing
// @Summary      List products
// @Description  Published, non-deleted products. Served from cache when enabled.
// @Tags         products
// @Produce      json
// @Param        q         query  string  false  "Search by name"
// @Param        category  query  string  false  "Category"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        limit     query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page}
// @Router       /api/products [get]
func (h *ProductHandler) ListProducts(c *gin.Context) {
	h.list(c, false)
}

// ListProductsForStaff includes hidden products and pending approval markers
// @Summary      List products (back office)
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Param        q      query  string  false  "Search by name"
// @Param        page   query  int     false  "Page number (default 1)"
// @Param        limit  query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page}
// @Router       /api/admin/products [get]
func (h *ProductHandler) ListProductsForStaff(c *gin.Context) {
	h.list(c, true)
}

func (h *ProductHandler) list(c *gin.Context, staff bool) {
	filter := productFilter(c)
	result, err := h.productService.ListProducts(c.Request.Context(), filter, staff)
	if err != nil {
		response.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{
		Items: result.Items,
		Total: result.Total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}))
}

// GetProduct returns a published product by slug
// @Summary      Get product
// @Tags         products
// @Produce      json
// @Param        slug  path      string  true  "Product slug"
// @Success      200   {object}  response.Response{data=service.ProductResponse}
// @Failure      404   {object}  response.Response
// @Router       /api/products/{slug} [get]
func (h *ProductHandler) GetProduct(c *gin.Context) {
	h.get(c, false)
}

// GetProductForStaff returns any product by slug with its pending marker
// @Summary      Get product (back office)
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Param        slug  path      string  true  "Product slug"
// @Success      200   {object}  response.Response{data=service.ProductResponse}
// @Failure      404   {object}  response.Response
// @Router       /api/admin/products/{slug} [get]
func (h *ProductHandler) GetProductForStaff(c *gin.Context) {
	h.get(c, true)
}

func (h *ProductHandler) get(c *gin.Context, staff bool) {
	product, err := h.productService.GetProductBySlug(c.Request.Context(), c.Param("slug"), staff)
	if err != nil {
		response.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// CreateProduct submits CREATE_PRODUCT
// @Summary      Create product
// @Description  Applied directly for admins, queued for approval for stockers
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateProductMutation  true  "Product"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/admin/products [post]
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var payload json.RawMessage
	if !bindJSON(c, &payload) {
		return
	}
	submit(c, h.approvalService, model.ReqCreateProduct, nil, payload)
}

// UpdateProduct submits UPDATE_PRODUCT
// @Summary      Update product
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Product ID"
// @Param        payload  body      service.UpdateProductMutation  true  "Changed fields"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/admin/products/{id} [put]
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	h.submitForProduct(c, model.ReqUpdateProduct)
}

// UpdateProductStock submits UPDATE_PRODUCT_STOCK
// @Summary      Set product stock
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                              true  "Product ID"
// @Param        payload  body      service.UpdateProductStockMutation  true  "New stock"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Router       /api/admin/products/{id}/stock [put]
func (h *ProductHandler) UpdateProductStock(c *gin.Context) {
	h.submitForProduct(c, model.ReqUpdateProductStock)
}

// RequestRestock submits REQUEST_RESTOCK
// @Summary      Restock product
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                          true  "Product ID"
// @Param        payload  body      service.RequestRestockMutation  true  "Quantity and reason"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Router       /api/admin/products/{id}/restock [post]
func (h *ProductHandler) RequestRestock(c *gin.Context) {
	h.submitForProduct(c, model.ReqRequestRestock)
}

// DeleteProduct submits DELETE_PRODUCT
// @Summary      Delete product
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Param        id    path      string  true   "Product ID"
// @Param        soft  query     bool    false  "Only flag the product as deleted"
// @Success      200   {object}  response.Response{data=service.SubmitResult}
// @Success      202   {object}  response.Response{data=service.SubmitResult}
// @Router       /api/admin/products/{id} [delete]
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	soft, _ := strconv.ParseBool(c.DefaultQuery("soft", "false"))
	submit(c, h.approvalService, model.ReqDeleteProduct, &id, service.DeleteProductMutation{Soft: soft})
}

func (h *ProductHandler) submitForProduct(c *gin.Context, t model.RequestType) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload json.RawMessage
	if !bindJSON(c, &payload) {
		return
	}
	submit(c, h.approvalService, t, &id, payload)
}
