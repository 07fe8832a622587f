package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
)

type ShipmentGormRepository struct {
	db *gorm.DB
}

func NewShipmentGormRepository(db *gorm.DB) *ShipmentGormRepository {
	return &ShipmentGormRepository{db: db}
}

func (r *ShipmentGormRepository) Create(ctx context.Context, shipment *models.Shipment) error {
	return translate(r.db.WithContext(ctx).Create(shipment).Error)
}

func (r *ShipmentGormRepository) FindByLineAndSequence(ctx context.Context, lineID uuid.UUID, seq int) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).
		Where("order_line_id = ? AND sequence_index = ?", lineID, seq).
		First(&shipment).Error; err != nil {
		return nil, translate(err)
	}
	return &shipment, nil
}

func (r *ShipmentGormRepository) MaxSequence(ctx context.Context, lineID uuid.UUID) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("order_line_id = ?", lineID).
		Select("COALESCE(MAX(sequence_index), 0)").
		Scan(&max).Error
	return max, err
}

func (r *ShipmentGormRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	var shipments []models.Shipment
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}

func (r *ShipmentGormRepository) MarkBooked(ctx context.Context, id uuid.UUID, awb, carrier string) error {
	return affected(r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"awb":        awb,
			"carrier":    carrier,
			"status":     models.ShipmentBooked,
			"last_error": "",
		}))
}

func (r *ShipmentGormRepository) RecordFailure(ctx context.Context, id uuid.UUID, reason string) error {
	if len(reason) > 1024 {
		reason = reason[:1024]
	}
	return affected(r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND status = ?", id, models.ShipmentNotCreated).
		Update("last_error", reason))
}
