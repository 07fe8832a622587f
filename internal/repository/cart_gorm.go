package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
)

// CartGormRepository stores cart entries. Entries carry no version column, so
// concurrent quantity updates to the same entry are last-write-wins.
type CartGormRepository struct {
	db *gorm.DB
}

func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

func (r *CartGormRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartEntry, error) {
	var entries []models.CartEntry
	if err := r.db.WithContext(ctx).
		Preload("Variant.Product").
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *CartGormRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CartEntry, error) {
	var entry models.CartEntry
	if err := r.db.WithContext(ctx).
		Preload("Variant.Product").
		First(&entry, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *CartGormRepository) FindByUserAndVariant(ctx context.Context, userID, variantID uuid.UUID) (*models.CartEntry, error) {
	var entry models.CartEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND variant_id = ?", userID, variantID).
		First(&entry).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *CartGormRepository) Create(ctx context.Context, entry *models.CartEntry) error {
	return translate(r.db.WithContext(ctx).Omit("Variant").Create(entry).Error)
}

func (r *CartGormRepository) UpdateQuantity(ctx context.Context, id uuid.UUID, qty int) error {
	return affected(r.db.WithContext(ctx).
		Model(&models.CartEntry{}).
		Where("id = ?", id).
		Update("quantity", qty))
}

func (r *CartGormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.db.WithContext(ctx).Delete(&models.CartEntry{}, "id = ?", id))
}

func (r *CartGormRepository) ClearByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartEntry{})
	return res.RowsAffected, res.Error
}
