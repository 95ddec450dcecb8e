package eav_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"alma/internal/core/apperror"
	"alma/internal/core/id"
	"alma/internal/domain/eav"
	"alma/internal/infrastructure/storage/postgres"
)

var _ eav.EntityTypeRepository = (*EntityTypeRepo)(nil)

// EntityTypeRepo persists entity types in eav_entity_types.
type EntityTypeRepo struct {
	txManager *postgres.TxManager
	cols      []string
}

// NewEntityTypeRepo creates the repository.
func NewEntityTypeRepo(txManager *postgres.TxManager) *EntityTypeRepo {
	return &EntityTypeRepo{
		txManager: txManager,
		cols:      postgres.ExtractDBColumns[eav.EntityType](),
	}
}

// Insert stores a new entity type. A race on the partial unique name index
// resolves to (false, nil): ON CONFLICT DO NOTHING, the caller re-reads
// the winner.
func (r *EntityTypeRepo) Insert(ctx context.Context, et *eav.EntityType) (bool, error) {
	q := builder().
		Insert(entityTypesTable).
		SetMap(postgres.StructToMap(et)).
		Suffix("ON CONFLICT (name) WHERE deleted_at IS NULL DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, apperror.NewDatabase("insert entity type", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByName retrieves a non-deleted entity type by unique name.
func (r *EntityTypeRepo) FindByName(ctx context.Context, name string) (*eav.EntityType, error) {
	q := builder().
		Select(r.cols...).
		From(entityTypesTable).
		Where(squirrel.Eq{"name": name}).
		Where("deleted_at IS NULL").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var et eav.EntityType
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &et, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("entityType", name)
		}
		return nil, apperror.NewDatabase("find entity type", err)
	}
	return &et, nil
}

// List retrieves all non-deleted entity types ordered by name.
func (r *EntityTypeRepo) List(ctx context.Context) ([]*eav.EntityType, error) {
	q := builder().
		Select(r.cols...).
		From(entityTypesTable).
		Where("deleted_at IS NULL").
		OrderBy("name ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var types []*eav.EntityType
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &types, sql, args...); err != nil {
		return nil, apperror.NewDatabase("list entity types", err)
	}
	return types, nil
}

// SetActive toggles the is_active flag.
func (r *EntityTypeRepo) SetActive(ctx context.Context, entityTypeID id.ID, active bool) error {
	q := builder().
		Update(entityTypesTable).
		Set("is_active", active).
		Where(squirrel.Eq{"id": entityTypeID}).
		Where("deleted_at IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase("set entity type active", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("entityType", entityTypeID.String())
	}
	return nil
}
