package eav_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"alma/internal/core/apperror"
	"alma/internal/core/entity"
	"alma/internal/infrastructure/storage/postgres"
)

var _ entity.Resolver = (*TableResolver)(nil)

// TableResolver answers entity existence checks against the domain tables
// named by the registry. The polymorphic value table has no foreign key,
// so this is the only guard against writing attributes for rows that do
// not exist.
type TableResolver struct {
	txManager *postgres.TxManager
}

// NewTableResolver creates the resolver.
func NewTableResolver(txManager *postgres.TxManager) *TableResolver {
	return &TableResolver{txManager: txManager}
}

// Exists reports whether a row with the ref's id is present in tableName.
// The table name comes from the registry, never from request input.
func (r *TableResolver) Exists(ctx context.Context, tableName string, ref entity.Ref) (bool, error) {
	table := pgx.Identifier{tableName}.Sanitize()
	sql := fmt.Sprintf("SELECT 1 FROM %s WHERE id::text = $1 LIMIT 1", table)

	var one int
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, ref.ID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperror.NewDatabase("resolve entity", err)
	}
	return true, nil
}
