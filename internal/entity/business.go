package entity

import (
	"time"

	"github.com/google/uuid"
)

// BusinessStatus describes the lifecycle state of a listing.
type BusinessStatus string

const (
	StatusDraft     BusinessStatus = "draft"
	StatusPublished BusinessStatus = "published"
	StatusSuspended BusinessStatus = "suspended"
)

// Business represents a directory listing. The search core treats it as
// read-only input; mutation happens in the onboarding and profile flows.
type Business struct {
	ID                uuid.UUID      `json:"id"`
	Name              string         `json:"name"`
	Description       *string        `json:"description,omitempty"`
	Status            BusinessStatus `json:"status"`
	Phone             *string        `json:"phone,omitempty"`
	Website           *string        `json:"website,omitempty"`
	Address           *string        `json:"address,omitempty"`
	City              *string        `json:"city,omitempty"`
	State             *string        `json:"state,omitempty"`
	Zip               *string        `json:"zip,omitempty"`
	Latitude          *float64       `json:"latitude,omitempty"`
	Longitude         *float64       `json:"longitude,omitempty"`
	Rating            float64        `json:"rating"`
	ReviewCount       int            `json:"review_count"`
	PriceTier         int            `json:"price_tier"`
	Hours             WeekHours      `json:"hours,omitempty"`
	Verified          bool           `json:"verified"`
	Featured          bool           `json:"featured"`
	ServiceAreaRadius *float64       `json:"service_area_radius,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// HasPoint reports whether the listing carries geocoded coordinates.
func (b *Business) HasPoint() bool {
	return b.Latitude != nil && b.Longitude != nil
}

// BusinessWithRelations is a Business hydrated with its related rows.
type BusinessWithRelations struct {
	Business
	Categories []Category `json:"categories,omitempty"`
	Reviews    []Review   `json:"reviews,omitempty"`
	Photos     []Photo    `json:"photos,omitempty"`
}

// Category is a taxonomy node referenced by listings.
type Category struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
}

// Review is a consumer review attached to a listing.
type Review struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Rating     float64   `json:"rating"`
	Text       *string   `json:"text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Photo is an image attached to a listing, in display order.
type Photo struct {
	ID       uuid.UUID `json:"id"`
	URL      string    `json:"url"`
	AltText  *string   `json:"alt_text,omitempty"`
	Position int       `json:"position"`
}
