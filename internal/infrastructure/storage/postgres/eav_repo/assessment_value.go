package eav_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"alma/internal/core/apperror"
	"alma/internal/core/entity"
	"alma/internal/core/id"
	"alma/internal/domain/eav"
	"alma/internal/infrastructure/storage/postgres"
)

var _ eav.ValueRepository = (*AssessmentValueRepo)(nil)

// AssessmentValueRepo persists assessment attribute values in the
// dedicated assessment_attribute_values table. Unlike the polymorphic
// table it has no entity_type column: entity_id is a real foreign key to
// assessments(id) with ON DELETE CASCADE, so the database removes values
// together with their assessment.
type AssessmentValueRepo struct {
	txManager *postgres.TxManager
	cols      []string
}

// NewAssessmentValueRepo creates the repository.
func NewAssessmentValueRepo(txManager *postgres.TxManager) *AssessmentValueRepo {
	cols := make([]string, 0)
	for _, col := range postgres.ExtractDBColumns[eav.AttributeValue]() {
		if col == "entity_type" {
			continue
		}
		cols = append(cols, col)
	}
	return &AssessmentValueRepo{txManager: txManager, cols: cols}
}

// FindCurrent retrieves the non-deleted row of a single-valued attribute.
func (r *AssessmentValueRepo) FindCurrent(ctx context.Context, ref entity.Ref, attributeID id.ID) (*eav.AttributeValue, error) {
	q := builder().
		Select(r.cols...).
		From(assessmentValuesTable).
		Where(squirrel.Eq{"entity_id": ref.ID, "attribute_id": attributeID}).
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
		return nil, apperror.NewDatabase("find assessment value", err)
	}
	v.EntityType = ref.Type
	return &v, nil
}

// ListForEntity retrieves all non-deleted rows of one assessment.
func (r *AssessmentValueRepo) ListForEntity(ctx context.Context, ref entity.Ref) ([]*eav.AttributeValue, error) {
	q := builder().
		Select(r.cols...).
		From(assessmentValuesTable).
		Where(squirrel.Eq{"entity_id": ref.ID}).
		Where("deleted_at IS NULL").
		OrderBy("attribute_id ASC", "sort_order ASC")

	return r.selectMany(ctx, ref, q)
}

// ListForAttribute retrieves the ordered rows of one attribute.
func (r *AssessmentValueRepo) ListForAttribute(ctx context.Context, ref entity.Ref, attributeID id.ID) ([]*eav.AttributeValue, error) {
	q := builder().
		Select(r.cols...).
		From(assessmentValuesTable).
		Where(squirrel.Eq{"entity_id": ref.ID, "attribute_id": attributeID}).
		Where("deleted_at IS NULL").
		OrderBy("sort_order ASC")

	return r.selectMany(ctx, ref, q)
}

// Insert stores a new value row, dropping the entity_type field the table
// does not carry.
func (r *AssessmentValueRepo) Insert(ctx context.Context, v *eav.AttributeValue) error {
	data := filterColumns(postgres.StructToMap(v), r.cols)

	q := builder().
		Insert(assessmentValuesTable).
		SetMap(data)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("insert assessment value", err)
	}
	return nil
}

// UpdateTyped overwrites the typed columns and sort order of an existing
// row.
func (r *AssessmentValueRepo) UpdateTyped(ctx context.Context, v *eav.AttributeValue) error {
	data := filterColumns(postgres.StructToMap(v), typedColumns)

	q := builder().
		Update(assessmentValuesTable).
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
		return apperror.NewDatabase("update assessment value", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("attributeValue", v.ID.String())
	}
	return nil
}

// NextSortOrder returns the append position for a multi-valued attribute.
func (r *AssessmentValueRepo) NextSortOrder(ctx context.Context, ref entity.Ref, attributeID id.ID) (int, error) {
	q := builder().
		Select("COALESCE(MAX(sort_order) + 1, 0)").
		From(assessmentValuesTable).
		Where(squirrel.Eq{"entity_id": ref.ID, "attribute_id": attributeID}).
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
// assessment.
func (r *AssessmentValueRepo) SoftDeleteForAttribute(ctx context.Context, ref entity.Ref, attributeID id.ID) (int64, error) {
	q := builder().
		Update(assessmentValuesTable).
		Set("deleted_at", time.Now().UTC()).
		Where(squirrel.Eq{"entity_id": ref.ID, "attribute_id": attributeID}).
		Where("deleted_at IS NULL")

	return r.execCount(ctx, q, "soft delete assessment values")
}

// SoftDeleteForEntityType soft-deletes every row of the entity type. The
// table has no entity_type column, so rows are scoped through the
// attribute ids of the type's catalog.
func (r *AssessmentValueRepo) SoftDeleteForEntityType(ctx context.Context, entityTypeName string, attributeIDs []id.ID) (int64, error) {
	if len(attributeIDs) == 0 {
		return 0, nil
	}

	q := builder().
		Update(assessmentValuesTable).
		Set("deleted_at", time.Now().UTC()).
		Where(squirrel.Eq{"attribute_id": attributeIDs}).
		Where("deleted_at IS NULL")

	return r.execCount(ctx, q, "soft delete assessment values")
}

func (r *AssessmentValueRepo) selectMany(ctx context.Context, ref entity.Ref, q squirrel.SelectBuilder) ([]*eav.AttributeValue, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var values []*eav.AttributeValue
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &values, sql, args...); err != nil {
		return nil, apperror.NewDatabase("list assessment values", err)
	}
	for _, v := range values {
		v.EntityType = ref.Type
	}
	return values, nil
}

func (r *AssessmentValueRepo) execCount(ctx context.Context, q squirrel.UpdateBuilder, step string) (int64, error) {
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
