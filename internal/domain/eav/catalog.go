package eav

import (
	"context"

	"alma/internal/core/apperror"
	"alma/internal/core/id"
)

// Catalog declares and manages the shape of each attribute. It is always
// read fresh from storage per call; there is no in-memory cache, so
// definitions take effect immediately after Define/Retire.
//
// The catalog declares validation rules but does not enforce them on
// values; enforcement is the Store's job at write time.
type Catalog struct {
	repo DefinitionRepository
}

// NewCatalog creates a Catalog over the given repository.
func NewCatalog(repo DefinitionRepository) *Catalog {
	return &Catalog{repo: repo}
}

// AttributeSpec is the declaration used to define an attribute.
type AttributeSpec struct {
	Name          string          `json:"name"`
	DisplayName   string          `json:"displayName"`
	Description   string          `json:"description,omitempty"`
	ValueType     ValueType       `json:"valueType"`
	IsRequired    bool            `json:"isRequired,omitempty"`
	IsMultiValued bool            `json:"isMultiValued,omitempty"`
	DefaultValue  *string         `json:"defaultValue,omitempty"`
	Rules         ValidationRules `json:"validationRules,omitempty"`
	SortOrder     int             `json:"sortOrder,omitempty"`
}

// Define creates an attribute definition, idempotently on
// (entityTypeID, name). When an active definition with the same name
// already exists it is returned with created=false instead of erroring,
// which lets the setup migration be safely re-run.
//
// Redefining an existing attribute under a different value type is
// rejected: changing it would orphan the stored typed columns.
func (c *Catalog) Define(ctx context.Context, entityTypeID id.ID, spec AttributeSpec) (*AttributeDefinition, bool, error) {
	existing, err := c.repo.FindByName(ctx, entityTypeID, spec.Name)
	if err == nil {
		if existing.ValueType != spec.ValueType {
			return nil, false, apperror.NewValidation("value type of an existing attribute cannot change").
				WithDetail("attribute", spec.Name).
				WithDetail("existing", string(existing.ValueType)).
				WithDetail("requested", string(spec.ValueType))
		}
		return existing, false, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, false, err
	}

	def := &AttributeDefinition{
		ID:              id.New(),
		EntityTypeID:    entityTypeID,
		Name:            spec.Name,
		DisplayName:     spec.DisplayName,
		ValueType:       spec.ValueType,
		IsRequired:      spec.IsRequired,
		IsMultiValued:   spec.IsMultiValued,
		DefaultValue:    spec.DefaultValue,
		ValidationRules: spec.Rules,
		SortOrder:       spec.SortOrder,
		IsActive:        true,
	}
	if spec.Description != "" {
		desc := spec.Description
		def.Description = &desc
	}
	if def.DisplayName == "" {
		def.DisplayName = spec.Name
	}
	if err := def.Validate(ctx); err != nil {
		return nil, false, err
	}

	created, err := c.repo.Insert(ctx, def)
	if err != nil {
		return nil, false, err
	}
	if created {
		return def, true, nil
	}

	// Concurrent creator won; adopt its row, still checking the type.
	winner, err := c.repo.FindByName(ctx, entityTypeID, spec.Name)
	if err != nil {
		return nil, false, err
	}
	if winner.ValueType != spec.ValueType {
		return nil, false, apperror.NewValidation("value type of an existing attribute cannot change").
			WithDetail("attribute", spec.Name).
			WithDetail("existing", string(winner.ValueType)).
			WithDetail("requested", string(spec.ValueType))
	}
	return winner, false, nil
}

// GetByName retrieves one active definition by its natural key.
func (c *Catalog) GetByName(ctx context.Context, entityTypeID id.ID, name string) (*AttributeDefinition, error) {
	return c.repo.FindByName(ctx, entityTypeID, name)
}

// ListAttributes retrieves definitions for an entity type ordered by
// sortOrder ascending, ties broken by name.
func (c *Catalog) ListAttributes(ctx context.Context, entityTypeID id.ID, activeOnly bool) ([]*AttributeDefinition, error) {
	return c.repo.ListByEntityType(ctx, entityTypeID, activeOnly)
}

// Retire soft-deletes a definition. Stored values are left untouched;
// whether to delete them is a caller decision (see the rollback workflow).
func (c *Catalog) Retire(ctx context.Context, defID id.ID) error {
	return c.repo.Retire(ctx, defID)
}

// RetireAll soft-deletes every active definition of the entity type.
func (c *Catalog) RetireAll(ctx context.Context, entityTypeID id.ID) (int64, error) {
	return c.repo.RetireAllForEntityType(ctx, entityTypeID)
}
