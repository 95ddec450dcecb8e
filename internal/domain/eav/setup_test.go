package eav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countCreated(report *SetupReport) (created, existing int) {
	for _, cat := range report.Categories {
		created += cat.Created
		existing += cat.Existing
	}
	return created, existing
}

func TestMigrator_SetupIsIdempotent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	spec := userSpec()

	first, err := e.migrator.RunSetup(ctx, spec, SetupOptions{})
	require.NoError(t, err)
	assert.True(t, first.EntityTypeCreated)

	created, existing := countCreated(first)
	assert.Equal(t, 22, created)
	assert.Zero(t, existing)
	assert.True(t, e.flags.flags["users.profile_eav_enabled"])

	// Re-run: everything already in place, nothing duplicated.
	second, err := e.migrator.RunSetup(ctx, spec, SetupOptions{})
	require.NoError(t, err)
	assert.False(t, second.EntityTypeCreated)

	created, existing = countCreated(second)
	assert.Zero(t, created)
	assert.Equal(t, 22, existing)

	defs, err := e.catalog.ListAttributes(ctx, mustEntityType(t, e, "User").ID, true)
	require.NoError(t, err)
	assert.Len(t, defs, 22)
}

func TestMigrator_SetupDryRunPersistsNothing(t *testing.T) {
	e := newTestEngine()
	// The in-memory fakes have no transactional rollback, so assert on the
	// report shape only; the real rollback is covered by the tx manager.
	report, err := e.migrator.RunSetup(context.Background(), assessmentSpec(), SetupOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.True(t, report.EntityTypeCreated)

	created, _ := countCreated(report)
	assert.Equal(t, 5, created)
}

func TestMigrator_RollbackPausesWithoutDestroying(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	spec := userSpec()

	_, err := e.migrator.RunSetup(ctx, spec, SetupOptions{})
	require.NoError(t, err)

	_, err = e.service.SetAttribute(ctx, "User", "u-1", "preferred_name", "Sam")
	require.NoError(t, err)
	_, err = e.service.SetAttribute(ctx, "User", "u-1", "scholarships", []any{"merit", "athletic"})
	require.NoError(t, err)

	report, err := e.migrator.RunRollback(ctx, spec, SetupOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.ValuesSoftDeleted)
	assert.Equal(t, int64(22), report.DefinitionsRetired)
	assert.True(t, report.FlagReset)
	assert.False(t, e.flags.flags["users.profile_eav_enabled"])

	// Soft-deleted, not gone: the raw rows survive for audit.
	assert.Len(t, e.values.rows, 3)
	for _, row := range e.values.rows {
		assert.NotNil(t, row.DeletedAt)
	}

	// Reads see an empty catalog now.
	attrs, err := e.service.GetAttributesFor(ctx, "User", "u-1")
	require.NoError(t, err)
	assert.Empty(t, attrs)

	// Rolling back again is a harmless no-op.
	report, err = e.migrator.RunRollback(ctx, spec, SetupOptions{})
	require.NoError(t, err)
	assert.True(t, report.AlreadyRolledBack)
	assert.Zero(t, report.ValuesSoftDeleted)
	assert.Zero(t, report.DefinitionsRetired)
}

func TestMigrator_ResetupAfterRollbackStartsFresh(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	spec := userSpec()

	_, err := e.migrator.RunSetup(ctx, spec, SetupOptions{})
	require.NoError(t, err)
	_, err = e.service.SetAttribute(ctx, "User", "u-1", "preferred_name", "Sam")
	require.NoError(t, err)
	_, err = e.migrator.RunRollback(ctx, spec, SetupOptions{})
	require.NoError(t, err)

	report, err := e.migrator.RunSetup(ctx, spec, SetupOptions{})
	require.NoError(t, err)

	// Entity type survives the rollback; definitions are rebuilt fresh.
	assert.False(t, report.EntityTypeCreated)
	created, _ := countCreated(report)
	assert.Equal(t, 22, created)
	assert.True(t, e.flags.flags["users.profile_eav_enabled"])

	// Old values stay dead; the fresh definitions have new identities.
	attrs, err := e.service.GetAttributesFor(ctx, "User", "u-1")
	require.NoError(t, err)
	_, present := attrs["preferred_name"]
	assert.False(t, present)
}

func TestMigrator_RollbackOfUnknownTypeIsNoop(t *testing.T) {
	e := newTestEngine()
	report, err := e.migrator.RunRollback(context.Background(), userSpec(), SetupOptions{})
	require.NoError(t, err)
	assert.True(t, report.AlreadyRolledBack)
}

func TestDefaultSetupSpecs_AreInternallyValid(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	for _, spec := range DefaultSetupSpecs() {
		_, err := e.migrator.RunSetup(ctx, spec, SetupOptions{})
		require.NoError(t, err, "spec %s", spec.Name)
	}

	types, err := e.registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "Assessment", types[0].Name)
	assert.True(t, types[0].UseEntitySpecificTable)
	assert.Equal(t, "User", types[1].Name)
	assert.False(t, types[1].UseEntitySpecificTable)
}

func mustEntityType(t *testing.T, e *testEngine, name string) *EntityType {
	t.Helper()
	et, err := e.registry.GetByName(context.Background(), name)
	require.NoError(t, err)
	return et
}
