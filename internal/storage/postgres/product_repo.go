package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository persists products and their SEO rows.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &product, nil
}

func (r *ProductRepository) UpdateCategory(ctx context.Context, id uint, category string) error {
	return r.updateColumn(ctx, id, "category", category)
}

func (r *ProductRepository) Rename(ctx context.Context, id uint, name string) error {
	return r.updateColumn(ctx, id, "name", name)
}

func (r *ProductRepository) updateColumn(ctx context.Context, id uint, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update product %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %d not found: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// UpsertSEO inserts or replaces the SEO row of a product.
func (r *ProductRepository) UpsertSEO(ctx context.Context, seo *models.ProductSEO) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "keywords", "description", "slug", "updated_at"}),
	}).Create(seo).Error; err != nil {
		return fmt.Errorf("upsert product seo: %w", err)
	}
	return nil
}

func (r *ProductRepository) GetSEO(ctx context.Context, productID uint) (*models.ProductSEO, error) {
	var seo models.ProductSEO
	if err := r.db.WithContext(ctx).First(&seo, "product_id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product seo not found: %w", err)
		}
		return nil, fmt.Errorf("get product seo: %w", err)
	}
	return &seo, nil
}

func (r *ProductRepository) HasSEO(ctx context.Context, productID uint) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.ProductSEO{}).
		Where("product_id = ? AND title <> ''", productID).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("check product seo: %w", err)
	}
	return n > 0, nil
}
