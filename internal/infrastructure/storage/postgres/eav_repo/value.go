package eav_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"alma/internal/core/apperror"
	"alma/internal/core/entity"
	"alma/internal/core/id"
	"alma/internal/domain/eav"
	"alma/internal/infrastructure/storage/postgres"
)

var (
	_ eav.ValueRepository = (*ValueRepo)(nil)
	_ eav.OrphanPruner    = (*ValueRepo)(nil)
)

// typedColumns are the columns rewritten wholesale on every value update:
// the wide sparse row keeps exactly one of them non-null.
var typedColumns = []string{
	"value_string", "value_integer", "value_decimal", "value_boolean",
	"value_date", "value_datetime", "value_text", "value_json",
}

// ValueRepo persists attribute values in the shared polymorphic table
// eav_attribute_values. Rows are addressed by the
// (entity_type, entity_id, attribute_id) triple; no foreign key backs
// entity_id, so orphan cleanup is an explicit maintenance pass.
type ValueRepo struct {
	txManager *postgres.TxManager
	cols      []string
}

// NewValueRepo creates the repository.
func NewValueRepo(txManager *postgres.TxManager) *ValueRepo {
	return &ValueRepo{
		txManager: txManager,
		cols:      postgres.ExtractDBColumns[eav.AttributeValue](),
	}
}

// FindCurrent retrieves the non-deleted row of a single-valued attribute.
func (r *ValueRepo) FindCurrent(ctx context.Context, ref entity.Ref, attributeID id.ID) (*eav.AttributeValue, error) {
	q := builder().
		Select(r.cols...).
		From(genericValuesTable).
		Where(r.refCond(ref)).
		Where(squirrel.Eq{"attribute_id": attributeID}).
		Where("deleted_at IS NULL").
		OrderBy("sort_order ASC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var v eav.AttributeValue
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &v, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("attributeValue", attributeID.String())
		}
		return nil, apperror.NewDatabase("find attribute value", err)
	}
	return &v, nil
}

// ListForEntity retrieves all non-deleted rows of one entity instance.
func (r *ValueRepo) ListForEntity(ctx context.Context, ref entity.Ref) ([]*eav.AttributeValue, error) {
	q := builder().
		Select(r.cols...).
		From(genericValuesTable).
		Where(r.refCond(ref)).
		Where("deleted_at IS NULL").
		OrderBy("attribute_id ASC", "sort_order ASC")

	return r.selectMany(ctx, q)
}

// ListForAttribute retrieves the ordered rows of one attribute.
func (r *ValueRepo) ListForAttribute(ctx context.Context, ref entity.Ref, attributeID id.ID) ([]*eav.AttributeValue, error) {
	q := builder().
		Select(r.cols...).
		From(genericValuesTable).
		Where(r.refCond(ref)).
		Where(squirrel.Eq{"attribute_id": attributeID}).
		Where("deleted_at IS NULL").
		OrderBy("sort_order ASC")

	return r.selectMany(ctx, q)
}

// Insert stores a new value row.
func (r *ValueRepo) Insert(ctx context.Context, v *eav.AttributeValue) error {
	q := builder().
		Insert(genericValuesTable).
		SetMap(postgres.StructToMap(v))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("insert attribute value", err)
	}
	return nil
}

// UpdateTyped overwrites the typed columns and sort order of an existing
// row. Every typed column is written so a type's previous column cannot
// linger.
func (r *ValueRepo) UpdateTyped(ctx context.Context, v *eav.AttributeValue) error {
	data := filterColumns(postgres.StructToMap(v), typedColumns)

	q := builder().
		Update(genericValuesTable).
		SetMap(data).
		Set("sort_order", v.SortOrder).
		Set("updated_at", v.UpdatedAt).
		Where(squirrel.Eq{"id": v.ID}).
		Where("deleted_at IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase("update attribute value", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("attributeValue", v.ID.String())
	}
	return nil
}

// NextSortOrder returns the append position for a multi-valued attribute.
func (r *ValueRepo) NextSortOrder(ctx context.Context, ref entity.Ref, attributeID id.ID) (int, error) {
	q := builder().
		Select("COALESCE(MAX(sort_order) + 1, 0)").
		From(genericValuesTable).
		Where(r.refCond(ref)).
		Where(squirrel.Eq{"attribute_id": attributeID}).
		Where("deleted_at IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var next int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&next); err != nil {
		return 0, apperror.NewDatabase("next sort order", err)
	}
	return next, nil
}

// SoftDeleteForAttribute soft-deletes all rows of one attribute for one
// entity.
func (r *ValueRepo) SoftDeleteForAttribute(ctx context.Context, ref entity.Ref, attributeID id.ID) (int64, error) {
	q := builder().
		Update(genericValuesTable).
		Set("deleted_at", time.Now().UTC()).
		Where(r.refCond(ref)).
		Where(squirrel.Eq{"attribute_id": attributeID}).
		Where("deleted_at IS NULL")

	return r.execCount(ctx, q, "soft delete attribute values")
}

// SoftDeleteForEntityType soft-deletes every row of the entity type. The
// polymorphic table filters on its entity_type column; the attribute ids
// are only needed by entity-specific tables.
func (r *ValueRepo) SoftDeleteForEntityType(ctx context.Context, entityTypeName string, attributeIDs []id.ID) (int64, error) {
	q := builder().
		Update(genericValuesTable).
		Set("deleted_at", time.Now().UTC()).
		Where(squirrel.Eq{"entity_type": entityTypeName}).
		Where("deleted_at IS NULL")

	return r.execCount(ctx, q, "soft delete entity type values")
}

// PruneOrphans physically removes rows (deleted or not) whose owning
// domain row no longer exists in tableName. The table name comes from the
// registry, never from request input.
func (r *ValueRepo) PruneOrphans(ctx context.Context, entityTypeName, tableName string) (int64, error) {
	table := pgx.Identifier{tableName}.Sanitize()
	sql := fmt.Sprintf(`
		DELETE FROM %s v
		WHERE v.entity_type = $1
		  AND NOT EXISTS (
			SELECT 1 FROM %s t WHERE t.id::text = v.entity_id
		  )`, genericValuesTable, table)

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, entityTypeName)
	if err != nil {
		return 0, apperror.NewDatabase("prune orphan values", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ValueRepo) refCond(ref entity.Ref) squirrel.Eq {
	return squirrel.Eq{"entity_type": ref.Type, "entity_id": ref.ID}
}

func (r *ValueRepo) selectMany(ctx context.Context, q squirrel.SelectBuilder) ([]*eav.AttributeValue, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var values []*eav.AttributeValue
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &values, sql, args...); err != nil {
		return nil, apperror.NewDatabase("list attribute values", err)
	}
	return values, nil
}

func (r *ValueRepo) execCount(ctx context.Context, q squirrel.UpdateBuilder, step string) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewDatabase(step, err)
	}
	return tag.RowsAffected(), nil
}
