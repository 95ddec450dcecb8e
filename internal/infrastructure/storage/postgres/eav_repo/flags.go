package eav_repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"alma/internal/core/apperror"
	"alma/internal/domain/eav"
	"alma/internal/infrastructure/storage/postgres"
)

var _ eav.FlagStore = (*FlagStore)(nil)

// FlagStore toggles the denormalized "EAV enabled" hint column that some
// domain tables carry (users.profile_eav_enabled). Setup enables it for
// every row, rollback resets it.
type FlagStore struct {
	txManager *postgres.TxManager
}

// NewFlagStore creates the store.
func NewFlagStore(txManager *postgres.TxManager) *FlagStore {
	return &FlagStore{txManager: txManager}
}

// SetEAVEnabled sets flagColumn on every row of tableName. Identifiers
// come from the setup specs, not request input.
func (f *FlagStore) SetEAVEnabled(ctx context.Context, tableName, flagColumn string, enabled bool) error {
	table := pgx.Identifier{tableName}.Sanitize()
	column := pgx.Identifier{flagColumn}.Sanitize()
	sql := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s IS DISTINCT FROM $1", table, column, column)

	if _, err := f.txManager.GetQuerier(ctx).Exec(ctx, sql, enabled); err != nil {
		return apperror.NewDatabase("set eav flag", err)
	}
	return nil
}
