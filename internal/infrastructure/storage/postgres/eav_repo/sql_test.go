package eav_repo

import (
	"strings"
	"testing"

	"github.com/Masterminds/squirrel"

	"alma/internal/core/id"
	"alma/internal/domain/eav"
	"alma/internal/infrastructure/storage/postgres"
)

func TestInsertEntityType_RaceSafeSQL(t *testing.T) {
	et := eav.NewEntityType("User", "users")

	q := builder().
		Insert(entityTypesTable).
		SetMap(postgres.StructToMap(et)).
		Suffix("ON CONFLICT (name) WHERE deleted_at IS NULL DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	if !strings.HasPrefix(sql, "INSERT INTO eav_entity_types") {
		t.Errorf("unexpected SQL prefix: %s", sql)
	}
	if !strings.HasSuffix(sql, "ON CONFLICT (name) WHERE deleted_at IS NULL DO NOTHING") {
		t.Errorf("missing conflict clause: %s", sql)
	}
	if !strings.Contains(sql, "$1") {
		t.Errorf("expected dollar placeholders: %s", sql)
	}
	if len(args) != len(postgres.ExtractDBColumns[eav.EntityType]()) {
		t.Errorf("args count mismatch: got %d", len(args))
	}
}

func TestValueQuery_ScopesByRefAndSoftDelete(t *testing.T) {
	attributeID := id.New()
	q := builder().
		Select("id").
		From(genericValuesTable).
		Where(squirrel.Eq{"entity_type": "User", "entity_id": "u-1"}).
		Where(squirrel.Eq{"attribute_id": attributeID}).
		Where("deleted_at IS NULL").
		OrderBy("sort_order ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	for _, want := range []string{"entity_type =", "entity_id =", "attribute_id =", "deleted_at IS NULL", "ORDER BY sort_order ASC"} {
		if !strings.Contains(sql, want) {
			t.Errorf("SQL missing %q:\n%s", want, sql)
		}
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}
}

func TestFilterColumns_DropsUnknown(t *testing.T) {
	v := &eav.AttributeValue{EntityType: "User", EntityID: "u-1"}
	repo := NewAssessmentValueRepo(nil)

	data := filterColumns(postgres.StructToMap(v), repo.cols)
	if _, ok := data["entity_type"]; ok {
		t.Error("entity_type should be filtered out for the assessment table")
	}
	if _, ok := data["entity_id"]; !ok {
		t.Error("entity_id should survive filtering")
	}
}

func TestTypedColumns_MatchValueStruct(t *testing.T) {
	declared := make(map[string]bool)
	for _, col := range postgres.ExtractDBColumns[eav.AttributeValue]() {
		if strings.HasPrefix(col, "value_") {
			declared[col] = true
		}
	}

	if len(declared) != len(typedColumns) {
		t.Fatalf("typedColumns out of sync: struct has %d value_ columns, list has %d", len(declared), len(typedColumns))
	}
	for _, col := range typedColumns {
		if !declared[col] {
			t.Errorf("typedColumns lists unknown column %q", col)
		}
	}
}
