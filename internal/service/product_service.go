package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
)

// DTOs
type ProductResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Category     string          `json:"category"`
	Brand        string          `json:"brand"`
	Description  string          `json:"description"`
	Image        string          `json:"image"`
	Price        string          `json:"price"`
	CountInStock int             `json:"count_in_stock"`
	InitialStock int             `json:"initial_stock"`
	IsPublished  bool            `json:"is_published"`
	IsDeleted    bool            `json:"is_deleted"`
	Pending      *PendingSummary `json:"pending_approval,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

type ProductList struct {
	Items []ProductResponse `json:"items"`
	Total int64             `json:"total"`
}

type ProductService interface {
	// ListProducts returns a page of products. Staff see hidden rows and the
	// pending-approval marker; the public listing is cached.
	ListProducts(ctx context.Context, filter repository.ProductFilter, staff bool) (ProductList, error)
	GetProductBySlug(ctx context.Context, slug string, staff bool) (ProductResponse, error)
}

type productService struct {
	productRepo repository.ProductRepository
	approvals   ApprovalService
	cache       *CacheService
}

func NewProductService(productRepo repository.ProductRepository, approvals ApprovalService, cache *CacheService) ProductService {
	return &productService{productRepo: productRepo, approvals: approvals, cache: cache}
}

func (s *productService) ListProducts(ctx context.Context, filter repository.ProductFilter, staff bool) (ProductList, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	filter.IncludeHidden = staff

	var key string
	if !staff {
		key = s.cache.Key(PathProducts) + "?" + listingQuery(filter)
		var cached ProductList
		if s.cache.Get(ctx, key, &cached) {
			return cached, nil
		}
	}

	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return ProductList{}, fmt.Errorf("failed to list products: %w", err)
	}

	result := ProductList{Items: make([]ProductResponse, 0, len(products)), Total: total}
	for _, p := range products {
		result.Items = append(result.Items, toProductResponse(p))
	}

	if staff {
		if err := s.attachPending(ctx, result.Items); err != nil {
			return ProductList{}, err
		}
		return result, nil
	}

	s.cache.Set(ctx, key, result, 0)
	return result, nil
}

func (s *productService) GetProductBySlug(ctx context.Context, slug string, staff bool) (ProductResponse, error) {
	key := s.cache.Key(ProductPath(slug))
	if !staff {
		var cached ProductResponse
		if s.cache.Get(ctx, key, &cached) {
			return cached, nil
		}
	}

	product, err := s.productRepo.FindBySlug(ctx, slug)
	if err != nil {
		return ProductResponse{}, lookupErr(err, "product")
	}
	if !staff && (!product.IsPublished || product.IsDeleted) {
		return ProductResponse{}, appErrors.Clone(appErrors.ErrNotFound, "product not found")
	}

	resp := toProductResponse(*product)
	if staff {
		items := []ProductResponse{resp}
		if err := s.attachPending(ctx, items); err != nil {
			return ProductResponse{}, err
		}
		return items[0], nil
	}

	s.cache.Set(ctx, key, resp, 0)
	return resp, nil
}

func (s *productService) attachPending(ctx context.Context, items []ProductResponse) error {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if id, err := uuid.Parse(it.ID); err == nil {
			ids = append(ids, id)
		}
	}

	index, err := s.approvals.PendingIndex(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		if p, ok := index[items[i].ID]; ok {
			items[i].Pending = &p
		}
	}
	return nil
}

func listingQuery(f repository.ProductFilter) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("limit", strconv.Itoa(f.Limit))
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	return q.Encode()
}

func toProductResponse(p model.Product) ProductResponse {
	return ProductResponse{
		ID:           p.ID.String(),
		Name:         p.Name,
		Slug:         p.Slug,
		Category:     p.Category,
		Brand:        p.Brand,
		Description:  p.Description,
		Image:        p.Image,
		Price:        p.Price.StringFixed(2),
		CountInStock: p.CountInStock,
		InitialStock: p.InitialStock,
		IsPublished:  p.IsPublished,
		IsDeleted:    p.IsDeleted,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
}
