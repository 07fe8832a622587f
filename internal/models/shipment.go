package models

import "github.com/google/uuid"

type ShipmentStatus string

const (
	ShipmentNotCreated ShipmentStatus = "NOT_CREATED"
	ShipmentBooked     ShipmentStatus = "BOOKED"
)

// Shipment is one physical package booked with the carrier for an order line.
// SequenceIndex tells apart several packages for the same line.
type Shipment struct {
	BaseModel
	OrderID       uuid.UUID      `gorm:"type:uuid;index;not null" json:"order_id"`
	OrderLineID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_shipment_line_seq" json:"order_line_id"`
	SequenceIndex int            `gorm:"not null;uniqueIndex:idx_shipment_line_seq" json:"sequence_index"`
	AWB           string         `gorm:"column:awb;index" json:"awb,omitempty"`
	Carrier       string         `json:"carrier,omitempty"`
	Status        ShipmentStatus `gorm:"type:varchar(16);not null" json:"status"`
	LastError     string         `json:"last_error,omitempty"`
}
