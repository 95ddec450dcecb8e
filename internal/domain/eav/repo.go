package eav

import (
	"context"

	"alma/internal/core/entity"
	"alma/internal/core/id"
)

// EntityTypeRepository persists entity type declarations.
type EntityTypeRepository interface {
	// Insert stores a new entity type. Returns false without error when a
	// concurrent creator won the race on the partial unique name index.
	Insert(ctx context.Context, et *EntityType) (bool, error)

	// FindByName retrieves a non-deleted entity type by unique name.
	FindByName(ctx context.Context, name string) (*EntityType, error)

	// List retrieves all non-deleted entity types ordered by name.
	List(ctx context.Context) ([]*EntityType, error)

	// SetActive toggles the is_active flag.
	SetActive(ctx context.Context, entityTypeID id.ID, active bool) error
}

// DefinitionRepository persists attribute definitions.
type DefinitionRepository interface {
	// Insert stores a new definition. Returns false without error when a
	// concurrent creator won the race on (entity_type_id, name).
	Insert(ctx context.Context, def *AttributeDefinition) (bool, error)

	// FindByName retrieves a non-deleted definition by its natural key.
	FindByName(ctx context.Context, entityTypeID id.ID, name string) (*AttributeDefinition, error)

	// ListByEntityType retrieves definitions ordered by sort_order, ties
	// broken by name. With activeOnly, soft-deleted/inactive rows are
	// excluded.
	ListByEntityType(ctx context.Context, entityTypeID id.ID, activeOnly bool) ([]*AttributeDefinition, error)

	// Retire soft-deletes one definition (deleted_at set, is_active false).
	Retire(ctx context.Context, defID id.ID) error

	// RetireAllForEntityType soft-deletes every active definition of the
	// entity type and reports how many rows were affected.
	RetireAllForEntityType(ctx context.Context, entityTypeID id.ID) (int64, error)
}

// ValueRepository persists attribute values for one storage strategy.
// The generic polymorphic table and each entity-specific table provide
// their own implementation.
type ValueRepository interface {
	// FindCurrent retrieves the single non-deleted row for a single-valued
	// attribute. Returns a NOT_FOUND AppError when absent.
	FindCurrent(ctx context.Context, ref entity.Ref, attributeID id.ID) (*AttributeValue, error)

	// ListForEntity retrieves all non-deleted rows for one entity instance,
	// ordered by attribute and sort order.
	ListForEntity(ctx context.Context, ref entity.Ref) ([]*AttributeValue, error)

	// ListForAttribute retrieves the non-deleted rows of one attribute for
	// one entity, ordered by sort order.
	ListForAttribute(ctx context.Context, ref entity.Ref, attributeID id.ID) ([]*AttributeValue, error)

	// Insert stores a new value row.
	Insert(ctx context.Context, v *AttributeValue) error

	// UpdateTyped overwrites the typed columns and sort order of an
	// existing row (last write wins; no optimistic locking on values).
	UpdateTyped(ctx context.Context, v *AttributeValue) error

	// NextSortOrder returns the append position for a multi-valued
	// attribute (max non-deleted sort_order + 1, starting at 0).
	NextSortOrder(ctx context.Context, ref entity.Ref, attributeID id.ID) (int, error)

	// SoftDeleteForAttribute soft-deletes all rows of one attribute for one
	// entity; returns the number of rows affected.
	SoftDeleteForAttribute(ctx context.Context, ref entity.Ref, attributeID id.ID) (int64, error)

	// SoftDeleteForEntityType soft-deletes every row belonging to the
	// entity type. The generic table filters on its entity_type column;
	// entity-specific tables use the attribute ids of the type's catalog.
	SoftDeleteForEntityType(ctx context.Context, entityTypeName string, attributeIDs []id.ID) (int64, error)
}

// OrphanPruner physically removes generic-table rows whose owning domain
// row no longer exists. The polymorphic strategy has no cascade, so this
// explicit maintenance pass is the only cleanup path.
type OrphanPruner interface {
	PruneOrphans(ctx context.Context, entityTypeName, tableName string) (int64, error)
}

// FlagStore toggles the denormalized "EAV enabled" hint column on a domain
// table. Rollback resets it; domain controllers otherwise own it.
type FlagStore interface {
	SetEAVEnabled(ctx context.Context, tableName, flagColumn string, enabled bool) error
}

// AuditAction labels an audited façade operation.
type AuditAction string

const (
	AuditActionSet    AuditAction = "set"
	AuditActionDelete AuditAction = "delete"
)

// AuditLogger records attribute changes. Implementations must not fail the
// business operation; errors are logged and swallowed by the caller.
type AuditLogger interface {
	LogChange(ctx context.Context, ref entity.Ref, attribute string, action AuditAction, oldValue, newValue any) error
}
