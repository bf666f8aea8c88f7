package model

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationReleased  ReservationStatus = "released"
	ReservationCommitted ReservationStatus = "committed"
)

type Reservation struct {
	ID            string            `db:"id" json:"id"`
	InventoryID   string            `db:"inventory_id" json:"inventory_id"`
	Quantity      int               `db:"quantity" json:"quantity"`
	ReferenceType string            `db:"reference_type" json:"reference_type"`
	ReferenceID   string            `db:"reference_id" json:"reference_id"`
	Status        ReservationStatus `db:"status" json:"status"`
	ExpiresAt     time.Time         `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

func (r *Reservation) IsActive() bool {
	return r.Status == ReservationActive
}

// ReservationSettlement moves an active reservation to a final status.
type ReservationSettlement struct {
	ReservationID string
	Status        ReservationStatus
}
