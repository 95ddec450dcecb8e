package eav

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alma/internal/core/apperror"
	"alma/internal/core/entity"
)

func setupUserType(t *testing.T, e *testEngine) {
	t.Helper()
	_, err := e.migrator.RunSetup(context.Background(), userSpec(), SetupOptions{})
	require.NoError(t, err)
}

func TestService_SetAndGetRoundTrip(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	written, err := e.service.SetAttribute(ctx, "User", "u-1", "student_gpa", "3.75")
	require.NoError(t, err)
	assert.True(t, written.(decimal.Decimal).Equal(decimal.RequireFromString("3.75")))

	attrs, err := e.service.GetAttributesFor(ctx, "User", "u-1")
	require.NoError(t, err)
	got, ok := attrs["student_gpa"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.RequireFromString("3.75")))

	// Overwrite wins; no second row appears.
	_, err = e.service.SetAttribute(ctx, "User", "u-1", "student_gpa", 2.5)
	require.NoError(t, err)

	attrs, err = e.service.GetAttributesFor(ctx, "User", "u-1")
	require.NoError(t, err)
	assert.True(t, attrs["student_gpa"].(decimal.Decimal).Equal(decimal.RequireFromString("2.5")))

	rows, err := e.values.ListForEntity(ctx, mustRef(t, "User", "u-1"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestService_DefaultFallback(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	// No stored rows: declared defaults surface, attributes without a
	// default are absent.
	attrs, err := e.service.GetAttributesFor(ctx, "User", "u-2")
	require.NoError(t, err)
	assert.Equal(t, false, attrs["newsletter_opt_in"])
	assert.Equal(t, "enrolled", attrs["enrollment_status"])
	_, present := attrs["student_gpa"]
	assert.False(t, present)

	// A stored value masks the default; deleting it restores the fallback.
	_, err = e.service.SetAttribute(ctx, "User", "u-2", "newsletter_opt_in", true)
	require.NoError(t, err)
	attrs, err = e.service.GetAttributesFor(ctx, "User", "u-2")
	require.NoError(t, err)
	assert.Equal(t, true, attrs["newsletter_opt_in"])

	existed, err := e.service.DeleteAttribute(ctx, "User", "u-2", "newsletter_opt_in")
	require.NoError(t, err)
	assert.True(t, existed)

	attrs, err = e.service.GetAttributesFor(ctx, "User", "u-2")
	require.NoError(t, err)
	assert.Equal(t, false, attrs["newsletter_opt_in"])

	// Deleting again reports nothing existed.
	existed, err = e.service.DeleteAttribute(ctx, "User", "u-2", "newsletter_opt_in")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestService_MultiValuedOrdering(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	// A slice replaces the whole ordered set.
	_, err := e.service.SetAttribute(ctx, "User", "u-3", "scholarships",
		[]any{"merit", "athletic", "need-based"})
	require.NoError(t, err)

	attrs, err := e.service.GetAttributesFor(ctx, "User", "u-3")
	require.NoError(t, err)
	assert.Equal(t, []any{"merit", "athletic", "need-based"}, attrs["scholarships"])

	// A scalar appends at the end.
	_, err = e.service.SetAttribute(ctx, "User", "u-3", "scholarships", "alumni")
	require.NoError(t, err)

	attrs, err = e.service.GetAttributesFor(ctx, "User", "u-3")
	require.NoError(t, err)
	assert.Equal(t, []any{"merit", "athletic", "need-based", "alumni"}, attrs["scholarships"])

	// Replacing with a shorter list leaves no stale tail.
	_, err = e.service.SetAttribute(ctx, "User", "u-3", "scholarships", []string{"merit"})
	require.NoError(t, err)

	attrs, err = e.service.GetAttributesFor(ctx, "User", "u-3")
	require.NoError(t, err)
	assert.Equal(t, []any{"merit"}, attrs["scholarships"])
}

func TestService_MultiValuedReplaceIsAtomic(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	_, err := e.service.SetAttribute(ctx, "User", "u-4", "scholarships", []any{"merit"})
	require.NoError(t, err)

	// One bad element rejects the whole replacement and keeps the old set.
	_, err = e.service.SetAttribute(ctx, "User", "u-4", "scholarships", []any{"athletic", 42})
	require.Error(t, err)

	attrs, err := e.service.GetAttributesFor(ctx, "User", "u-4")
	require.NoError(t, err)
	assert.Equal(t, []any{"merit"}, attrs["scholarships"])
}

func TestService_ValidationErrors(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	// Coercion failure and rule violation are distinguishable by code.
	_, err := e.service.SetAttribute(ctx, "User", "u-5", "student_gpa", "not a number")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidInput, appErr.Code)
	assert.Equal(t, "student_gpa", appErr.Details["attribute"])

	_, err = e.service.SetAttribute(ctx, "User", "u-5", "student_gpa", "4.5")
	require.Error(t, err)
	appErr, ok = apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, RuleMax, appErr.Details["rule"])

	// Nothing was stored by the failed writes.
	attrs, err := e.service.GetAttributesFor(ctx, "User", "u-5")
	require.NoError(t, err)
	_, present := attrs["student_gpa"]
	assert.False(t, present)
}

func TestService_UnknownTargetsAreNotFound(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	_, err := e.service.SetAttribute(ctx, "Ghost", "u-1", "student_gpa", "3")
	assert.True(t, apperror.IsNotFound(err))

	_, err = e.service.SetAttribute(ctx, "User", "u-1", "shoe_size", "44")
	assert.True(t, apperror.IsNotFound(err))

	e.resolver.missing["User/u-404"] = true
	_, err = e.service.SetAttribute(ctx, "User", "u-404", "student_gpa", "3")
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_BulkSetPartialSuccess(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	results, err := e.service.BulkSetAttributes(ctx, "User", "u-6", map[string]any{
		"preferred_name":    "Sam",
		"student_gpa":       "9.9", // above max
		"enrollment_year":   2024,
		"unknown_attribute": "x",
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "ok", results["preferred_name"].Status)
	assert.Equal(t, "ok", results["enrollment_year"].Status)

	assert.Equal(t, "error", results["student_gpa"].Status)
	assert.Equal(t, apperror.CodeValidation, results["student_gpa"].Code)
	assert.Equal(t, RuleMax, results["student_gpa"].Rule)

	assert.Equal(t, "error", results["unknown_attribute"].Status)
	assert.Equal(t, apperror.CodeNotFound, results["unknown_attribute"].Code)

	// Failed keys do not poison successful siblings.
	attrs, err := e.service.GetAttributesFor(ctx, "User", "u-6")
	require.NoError(t, err)
	assert.Equal(t, "Sam", attrs["preferred_name"])
	assert.Equal(t, int64(2024), attrs["enrollment_year"])
	_, present := attrs["student_gpa"]
	assert.False(t, present)
}

func TestService_EntitySpecificTableRouting(t *testing.T) {
	e := newTestEngine()
	_, err := e.migrator.RunSetup(context.Background(), assessmentSpec(), SetupOptions{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.service.SetAttribute(ctx, "Assessment", "a-1", "weight", "0.25")
	require.NoError(t, err)

	// The row landed in the dedicated repository, not the shared one.
	assert.Len(t, e.specific.rows, 1)
	assert.Empty(t, e.values.rows)

	attrs, err := e.service.GetAttributesFor(ctx, "Assessment", "a-1")
	require.NoError(t, err)
	assert.True(t, attrs["weight"].(decimal.Decimal).Equal(decimal.RequireFromString("0.25")))
}

func TestService_AuditTrail(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	_, err := e.service.SetAttribute(ctx, "User", "u-7", "preferred_name", "Alex")
	require.NoError(t, err)
	_, err = e.service.SetAttribute(ctx, "User", "u-7", "preferred_name", "Sasha")
	require.NoError(t, err)
	_, err = e.service.DeleteAttribute(ctx, "User", "u-7", "preferred_name")
	require.NoError(t, err)

	require.Len(t, e.audit.entries, 3)
	assert.Equal(t, AuditActionSet, e.audit.entries[0].Action)
	assert.Nil(t, e.audit.entries[0].OldValue)
	assert.Equal(t, "Alex", e.audit.entries[0].NewValue)

	assert.Equal(t, "Alex", e.audit.entries[1].OldValue)
	assert.Equal(t, "Sasha", e.audit.entries[1].NewValue)

	assert.Equal(t, AuditActionDelete, e.audit.entries[2].Action)
	assert.Equal(t, "Sasha", e.audit.entries[2].OldValue)
	assert.Nil(t, e.audit.entries[2].NewValue)
}

func TestService_DetailsExcludeRetiredDefinitions(t *testing.T) {
	e := newTestEngine()
	setupUserType(t, e)
	ctx := context.Background()

	et, err := e.registry.GetByName(ctx, "User")
	require.NoError(t, err)
	def, err := e.catalog.GetByName(ctx, et.ID, "academic_notes")
	require.NoError(t, err)
	require.NoError(t, e.catalog.Retire(ctx, def.ID))

	details, err := e.service.GetAttributesWithDetails(ctx, "User", "u-8")
	require.NoError(t, err)
	for _, d := range details {
		assert.NotEqual(t, "academic_notes", d.Name)
	}

	// The retired attribute is no longer writable either.
	_, err = e.service.SetAttribute(ctx, "User", "u-8", "academic_notes", "x")
	assert.True(t, apperror.IsNotFound(err))
}

func mustRef(t *testing.T, entityType, entityID string) entity.Ref {
	t.Helper()
	r, err := entity.NewRef(entityType, entityID)
	require.NoError(t, err)
	return r
}
