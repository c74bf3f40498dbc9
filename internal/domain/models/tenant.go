// Package models defines the domain models for the enrollment service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a school. Every record and operation in the service is
// scoped to exactly one tenant.
type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Status    string    `gorm:"size:32;not null;default:active"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTenant creates an active tenant.
func NewTenant(name string) *Tenant {
	return &Tenant{
		ID:     uuid.New(),
		Name:   name,
		Status: "active",
	}
}

// IsActive reports whether the tenant may perform operations.
func (t *Tenant) IsActive() bool {
	return t.Status == "active"
}
