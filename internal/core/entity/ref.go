// Package entity provides base types shared by all domain entities.
package entity

import (
	"context"
	"fmt"

	"alma/internal/core/apperror"
)

// Ref is a polymorphic reference to a domain row: a registered entity type
// name plus the opaque id of the row in that entity's own table.
//
// The generic value table has no foreign key across this boundary, so
// referential validity is checked in application code at write time
// (see Resolver).
type Ref struct {
	// Type is the registered EntityType name, e.g. "User".
	Type string

	// ID is the domain row's primary key, kept opaque as a string.
	ID string
}

// NewRef creates a validated Ref.
func NewRef(entityType, entityID string) (Ref, error) {
	r := Ref{Type: entityType, ID: entityID}
	if err := r.Validate(); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// Validate checks that both parts of the reference are present.
func (r Ref) Validate() error {
	if r.Type == "" {
		return apperror.NewValidation("entity type is required").
			WithDetail("field", "entityType")
	}
	if r.ID == "" {
		return apperror.NewValidation("entity id is required").
			WithDetail("field", "entityId")
	}
	return nil
}

// String renders the reference for logs and error details.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.ID)
}

// Resolver verifies that the domain row a Ref points at actually exists.
// Implementations live in infrastructure (table lookup); domain code only
// depends on this interface.
type Resolver interface {
	// Exists reports whether the referenced domain row exists in tableName.
	Exists(ctx context.Context, tableName string, ref Ref) (bool, error)
}
