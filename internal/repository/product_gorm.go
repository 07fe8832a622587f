package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
)

type ProductGormRepository struct {
	db *gorm.DB
}

func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

func (r *ProductGormRepository) List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if !filter.IncludeDeleted {
		query = query.Where("is_deleted = ?", false)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q := "%" + search + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", q, q)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	if err := limitPage(query, filter.Page).
		Preload("Variants", "is_deleted = ?", false).
		Order("created_at desc").
		Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *ProductGormRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Preload("Variants", "is_deleted = ?", false).
		First(&product, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (r *ProductGormRepository) Create(ctx context.Context, product *models.Product) error {
	return translate(r.db.WithContext(ctx).Create(product).Error)
}

func (r *ProductGormRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := affected(tx.Model(&models.Product{}).Where("id = ?", id).Update("is_deleted", true)); err != nil {
			return err
		}
		return tx.Model(&models.Variant{}).Where("product_id = ?", id).Update("is_deleted", true).Error
	})
}

func (r *ProductGormRepository) CreateVariant(ctx context.Context, variant *models.Variant) error {
	return translate(r.db.WithContext(ctx).Create(variant).Error)
}

func (r *ProductGormRepository) FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).
		Preload("Product").
		First(&variant, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &variant, nil
}

func (r *ProductGormRepository) SetStock(ctx context.Context, variantID uuid.UUID, stock int) error {
	return affected(r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", variantID).
		Update("stock", stock))
}

func (r *ProductGormRepository) DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ProductGormRepository) IncrementStock(ctx context.Context, variantID uuid.UUID, qty int) error {
	return affected(r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", variantID).
		Update("stock", gorm.Expr("stock + ?", qty)))
}
