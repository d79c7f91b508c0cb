package repository

import (
	"context"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search        string
	Category      string
	IncludeHidden bool // unpublished and soft-deleted rows, staff only
	Page          int
	Limit         int
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindBySlug(ctx context.Context, slug string) (*model.Product, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error)
	ListAll(ctx context.Context) ([]model.Product, error)
	UpdateStock(ctx context.Context, id uuid.UUID, stock int) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Create(product).Error
}

func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Save(product).Error
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Product{}).Error
}

func (r *productRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.Product{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": at, "is_published": false}).Error
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindBySlug(ctx context.Context, slug string) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Where("slug = ?", slug).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Product{})
	if !filter.IncludeHidden {
		db = db.Where("is_published = ? AND is_deleted = ?", true, false)
	}
	if filter.Search != "" {
		db = db.Where("name ILIKE ?", "%"+filter.Search+"%")
	}
	if filter.Category != "" {
		db = db.Where("category = ?", filter.Category)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Order("created_at desc").Offset(offset).Limit(filter.Limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *productRepository) ListAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := GetDB(ctx, r.db).Order("created_at asc").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) UpdateStock(ctx context.Context, id uuid.UUID, stock int) error {
	return GetDB(ctx, r.db).Model(&model.Product{}).Where("id = ?", id).Update("count_in_stock", stock).Error
}
