package model

import "time"

// Service is an entry of the public service catalog.
type Service struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	PriceCents      int64     `db:"price_cents" json:"price_cents"`
	PaymentLink     string    `db:"payment_link" json:"payment_link,omitempty"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	SortOrder       int       `db:"sort_order" json:"sort_order"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
