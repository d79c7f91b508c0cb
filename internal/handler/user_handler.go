package handler

import (
	"net/http"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/service"
	"storefront/pkg/pagination"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService  service.UserService
	guard        middleware.Guard
	tokenTTL     time.Duration
	secureCookie bool
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService, guard middleware.Guard, tokenTTL time.Duration, secureCookie bool) *UserHandler {
	return &UserHandler{userService: userService, guard: guard, tokenTTL: tokenTTL, secureCookie: secureCookie}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Public routes
	router.POST("/api/register", h.Register)
	router.POST("/api/login", h.Login)
	router.POST("/api/logout", h.Logout)

	// Me route (authenticated, any role)
	router.GET("/api/me", h.guard(), h.GetMe)

	users := router.Group("/api/users")
	users.Use(h.guard(model.RoleAdmin))
	{
		users.GET("", h.ListUsers)
		users.GET("/:id", h.GetUserByID)
		users.POST("", h.CreateUser)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
	}
}

// Register creates a customer account
// @Summary      Register
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterUserRequest  true  "Account"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/register [post]
func (h *UserHandler) Register(c *gin.Context) {
	var req service.RegisterUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// CreateUser handles POST /users requests mapping
// @Summary      Create a new user
// @Description  Creates a user with any role, staff included
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "Create User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), req)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// Login handles POST /login to authenticate and return a JWT token
// @Summary      Login user
// @Description  Authenticates a user by email and password, returning a JWT token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginUserRequest   true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginUserRequest
	if !bindJSON(c, &req) {
		return
	}

	tokenRes, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		response.Abort(c, err)
		return
	}

	middleware.SetTokenCookie(c, tokenRes.Token, h.tokenTTL, h.secureCookie)

	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokenRes))
}

// Logout handles POST /logout to clear the auth cookie
func (h *UserHandler) Logout(c *gin.Context) {
	middleware.ClearTokenCookie(c, h.secureCookie)
	c.JSON(http.StatusOK, response.SuccessMessage(http.StatusOK, "logged out", nil))
}

// GetMe handles GET /me to return current authenticated user based on JWT
// @Summary      Get current user
// @Description  Get the currently authenticated user and the request types they may submit
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  response.Response{data=object}
// @Failure      401      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), a.ID)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"user":         user,
		"direct_apply": service.CanApplyDirectly(user.Role),
		"can_review":   service.CanReview(user.Role),
		"proposable":   service.ProposableTypes(user.Role),
		"is_staff":     model.IsStaff(user.Role),
	}))
}

// ListUsers handles GET /users and extracts pagination controls
// @Summary      List users
// @Description  Retrieves a paginated list of users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        role   query     string  false  "Filter by role"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Failure      500    {object}  response.Response
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	p := pagination.Parse(c)

	users, total, err := h.userService.ListUsers(c.Request.Context(), c.Query("role"), p.Page, p.Limit)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{Items: users, Total: total, Page: p.Page, Limit: p.Limit}))
}

// GetUserByID handles target fetch resolution via GET /users/:id
// @Summary      Get user by ID
// @Description  Fetch a single user's detail by their UUID
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), id)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// UpdateUser handles target mutative changes via PUT /users/:id
// @Summary      Update user
// @Description  Updates a user's details excluding password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.UpdateUserRequest  true  "Update User Payload"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), id, req)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// DeleteUser orchestrates logical deletion mapping via DELETE /users/:id
// @Summary      Delete user
// @Description  Soft deletes a user by ID
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), id); err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessMessage(http.StatusOK, "user deleted", nil))
}
