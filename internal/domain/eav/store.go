package eav

import (
	"context"
	"time"

	"alma/internal/core/apperror"
	"alma/internal/core/entity"
	"alma/internal/core/id"
)

// Store performs typed, validated read/write of individual attribute
// values. It owns the typed-column dispatch (via AttributeValue's
// readTyped/writeTyped) and enforces the catalog's validation rules at
// write time.
//
// One ValueRepository serves the shared polymorphic table; entity types
// flagged UseEntitySpecificTable are routed to their dedicated repository.
type Store struct {
	generic  ValueRepository
	specific map[string]ValueRepository
}

// NewStore creates a Store over the generic repository. Entity-specific
// repositories are attached per entity type name with WithSpecificTable.
func NewStore(generic ValueRepository) *Store {
	return &Store{
		generic:  generic,
		specific: make(map[string]ValueRepository),
	}
}

// WithSpecificTable routes values of one entity type to a dedicated
// repository. Returns the store for chaining during wiring.
func (s *Store) WithSpecificTable(entityTypeName string, repo ValueRepository) *Store {
	s.specific[entityTypeName] = repo
	return s
}

// repoFor selects the repository matching the entity type's storage
// strategy, falling back to the generic table when no dedicated
// repository was wired.
func (s *Store) repoFor(et *EntityType) ValueRepository {
	if et.UseEntitySpecificTable {
		if repo, ok := s.specific[et.Name]; ok {
			return repo
		}
	}
	return s.generic
}

// Write coerces and validates rawValue against the definition, then
// upserts (single-valued) or appends (multi-valued) the row.
//
// Single-valued upsert is by natural key (entity, attribute): the existing
// non-deleted row's typed columns are overwritten in place. Last write
// wins; there is no optimistic-concurrency token on value rows.
func (s *Store) Write(ctx context.Context, et *EntityType, ref entity.Ref, def *AttributeDefinition, rawValue any) (*AttributeValue, error) {
	native, err := s.coerceAndValidate(def, rawValue)
	if err != nil {
		return nil, err
	}

	repo := s.repoFor(et)

	if def.IsMultiValued {
		next, err := repo.NextSortOrder(ctx, ref, def.ID)
		if err != nil {
			return nil, err
		}
		return s.insertRow(ctx, repo, ref, def, native, next)
	}

	existing, err := repo.FindCurrent(ctx, ref, def.ID)
	if err != nil {
		if !apperror.IsNotFound(err) {
			return nil, err
		}
		return s.insertRow(ctx, repo, ref, def, native, 0)
	}

	if err := existing.writeTyped(def.ValueType, native); err != nil {
		return nil, apperror.NewInternal(err).WithDetail("attribute", def.Name)
	}
	existing.UpdatedAt = time.Now().UTC()
	if err := repo.UpdateTyped(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// ReplaceAll replaces the full ordered value set of a multi-valued
// attribute: existing rows are soft-deleted and the supplied values are
// inserted with sort order following list position. Values are validated
// before any row is touched, so a bad element leaves the set unchanged.
func (s *Store) ReplaceAll(ctx context.Context, et *EntityType, ref entity.Ref, def *AttributeDefinition, rawValues []any) ([]*AttributeValue, error) {
	if !def.IsMultiValued {
		return nil, apperror.NewValidation("attribute is not multi-valued").
			WithDetail("attribute", def.Name)
	}

	natives := make([]any, 0, len(rawValues))
	for _, raw := range rawValues {
		native, err := s.coerceAndValidate(def, raw)
		if err != nil {
			return nil, err
		}
		natives = append(natives, native)
	}

	repo := s.repoFor(et)
	if _, err := repo.SoftDeleteForAttribute(ctx, ref, def.ID); err != nil {
		return nil, err
	}

	rows := make([]*AttributeValue, 0, len(natives))
	for i, native := range natives {
		row, err := s.insertRow(ctx, repo, ref, def, native, i)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Read returns the native value of a stored row, reading the typed column
// selected by the definition's value type.
func (s *Store) Read(row *AttributeValue, def *AttributeDefinition) (any, error) {
	native, err := row.readTyped(def.ValueType)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("attribute", def.Name)
	}
	return native, nil
}

// ListForEntity retrieves all stored rows of one entity instance.
func (s *Store) ListForEntity(ctx context.Context, et *EntityType, ref entity.Ref) ([]*AttributeValue, error) {
	return s.repoFor(et).ListForEntity(ctx, ref)
}

// ListForAttribute retrieves the ordered rows of one attribute.
func (s *Store) ListForAttribute(ctx context.Context, et *EntityType, ref entity.Ref, attributeID id.ID) ([]*AttributeValue, error) {
	return s.repoFor(et).ListForAttribute(ctx, ref, attributeID)
}

// Delete soft-deletes the value row(s) of one attribute for one entity and
// reports whether any row existed.
func (s *Store) Delete(ctx context.Context, et *EntityType, ref entity.Ref, def *AttributeDefinition) (bool, error) {
	affected, err := s.repoFor(et).SoftDeleteForAttribute(ctx, ref, def.ID)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteForEntityType soft-deletes every value row of the entity type
// (rollback path).
func (s *Store) DeleteForEntityType(ctx context.Context, et *EntityType, attributeIDs []id.ID) (int64, error) {
	return s.repoFor(et).SoftDeleteForEntityType(ctx, et.Name, attributeIDs)
}

// coerceAndValidate runs the two write-time gates in order: type coercion
// (failure -> INVALID_INPUT naming the attribute) then rule enforcement
// (failure -> VALIDATION_ERROR naming the rule).
func (s *Store) coerceAndValidate(def *AttributeDefinition, rawValue any) (any, error) {
	native, err := Coerce(def.ValueType, rawValue)
	if err != nil {
		return nil, apperror.NewCoercion(def.Name, string(def.ValueType), rawValue).WithCause(err)
	}
	if err := def.ValidationRules.Apply(def.Name, def.ValueType, native); err != nil {
		return nil, err
	}
	return native, nil
}

func (s *Store) insertRow(ctx context.Context, repo ValueRepository, ref entity.Ref, def *AttributeDefinition, native any, sortOrder int) (*AttributeValue, error) {
	now := time.Now().UTC()
	row := &AttributeValue{
		ID:          id.New(),
		AttributeID: def.ID,
		EntityType:  ref.Type,
		EntityID:    ref.ID,
		SortOrder:   sortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := row.writeTyped(def.ValueType, native); err != nil {
		return nil, apperror.NewInternal(err).WithDetail("attribute", def.Name)
	}
	if err := repo.Insert(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}
