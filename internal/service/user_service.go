package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"
	appErrors "storefront/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DTOs for Request validation
type RegisterUserRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required,oneof=admin sale stocker user"`
}

type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty,max=255"`
	Email string `json:"email" binding:"omitempty,email"`
	Role  string `json:"role" binding:"omitempty,oneof=admin sale stocker user"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string        `json:"token"`
	ExpiresAt string        `json:"expires_at"`
	User      *UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID `json:"id" swaggertype:"string"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	Register(ctx context.Context, req RegisterUserRequest) (*UserResponse, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, role string, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type userService struct {
	repo      repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, jwtSecret string, tokenTTL time.Duration) UserService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &userService{repo: repo, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL}
}

func validateRole(role string) bool {
	return role == model.RoleAdmin || role == model.RoleSale || role == model.RoleStocker || role == model.RoleUser
}

func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

// Register creates a customer account. Staff roles are only granted through CreateUser.
func (s *userService) Register(ctx context.Context, req RegisterUserRequest) (*UserResponse, error) {
	return s.CreateUser(ctx, CreateUserRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     model.RoleUser,
	})
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	if !validateRole(req.Role) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid role: must be admin, sale, stocker or user")
	}
	if len(req.Password) < 6 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "password must be at least 6 characters")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: string(hashedPassword),
		Role:     req.Role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapToResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"name": user.Name,
		"exp":  expiresAt.Unix(),
		"iat":  time.Now().Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{Token: tokenString, ExpiresAt: expiresAt.Format(time.RFC3339), User: mapToResponse(user)}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, role string, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, role, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}

	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user")
	}

	if req.Role != "" {
		if !validateRole(req.Role) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid role: must be admin, sale, stocker or user")
		}
		user.Role = req.Role
	}

	if req.Name != "" {
		user.Name = strings.TrimSpace(req.Name)
	}

	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" && email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, email); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		user.Email = email
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return lookupErr(err, "user")
	}
	return s.repo.Delete(ctx, id)
}
