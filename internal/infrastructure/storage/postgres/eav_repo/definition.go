package eav_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"alma/internal/core/apperror"
	"alma/internal/core/id"
	"alma/internal/domain/eav"
	"alma/internal/infrastructure/storage/postgres"
)

var _ eav.DefinitionRepository = (*DefinitionRepo)(nil)

// DefinitionRepo persists attribute definitions in
// eav_attribute_definitions.
type DefinitionRepo struct {
	txManager *postgres.TxManager
	cols      []string
}

// NewDefinitionRepo creates the repository.
func NewDefinitionRepo(txManager *postgres.TxManager) *DefinitionRepo {
	return &DefinitionRepo{
		txManager: txManager,
		cols:      postgres.ExtractDBColumns[eav.AttributeDefinition](),
	}
}

// Insert stores a new definition. A race on the partial unique
// (entity_type_id, name) index resolves to (false, nil).
func (r *DefinitionRepo) Insert(ctx context.Context, def *eav.AttributeDefinition) (bool, error) {
	q := builder().
		Insert(definitionsTable).
		SetMap(postgres.StructToMap(def)).
		Suffix("ON CONFLICT (entity_type_id, name) WHERE deleted_at IS NULL DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, apperror.NewDatabase("insert attribute definition", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByName retrieves a non-deleted definition by its natural key.
func (r *DefinitionRepo) FindByName(ctx context.Context, entityTypeID id.ID, name string) (*eav.AttributeDefinition, error) {
	q := builder().
		Select(r.cols...).
		From(definitionsTable).
		Where(squirrel.Eq{"entity_type_id": entityTypeID, "name": name}).
		Where("deleted_at IS NULL").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var def eav.AttributeDefinition
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &def, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("attribute", name)
		}
		return nil, apperror.NewDatabase("find attribute definition", err)
	}
	return &def, nil
}

// ListByEntityType retrieves definitions ordered by sort_order, ties broken
// by name.
func (r *DefinitionRepo) ListByEntityType(ctx context.Context, entityTypeID id.ID, activeOnly bool) ([]*eav.AttributeDefinition, error) {
	q := builder().
		Select(r.cols...).
		From(definitionsTable).
		Where(squirrel.Eq{"entity_type_id": entityTypeID}).
		OrderBy("sort_order ASC", "name ASC")
	if activeOnly {
		q = q.Where("deleted_at IS NULL").Where(squirrel.Eq{"is_active": true})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var defs []*eav.AttributeDefinition
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &defs, sql, args...); err != nil {
		return nil, apperror.NewDatabase("list attribute definitions", err)
	}
	return defs, nil
}

// Retire soft-deletes one definition.
func (r *DefinitionRepo) Retire(ctx context.Context, defID id.ID) error {
	q := builder().
		Update(definitionsTable).
		Set("deleted_at", time.Now().UTC()).
		Set("is_active", false).
		Where(squirrel.Eq{"id": defID}).
		Where("deleted_at IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase("retire attribute definition", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("attribute", defID.String())
	}
	return nil
}

// RetireAllForEntityType soft-deletes every active definition of the
// entity type.
func (r *DefinitionRepo) RetireAllForEntityType(ctx context.Context, entityTypeID id.ID) (int64, error) {
	q := builder().
		Update(definitionsTable).
		Set("deleted_at", time.Now().UTC()).
		Set("is_active", false).
		Where(squirrel.Eq{"entity_type_id": entityTypeID}).
		Where("deleted_at IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewDatabase("retire attribute definitions", err)
	}
	return tag.RowsAffected(), nil
}
