package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"alma/internal/core/id"
	"alma/internal/domain/eav"
)

func TestExtractDBColumns_AttributeValue(t *testing.T) {
	cols := ExtractDBColumns[eav.AttributeValue]()

	expected := []string{
		"id", "attribute_id", "entity_type", "entity_id",
		"value_string", "value_integer", "value_decimal", "value_boolean",
		"value_date", "value_datetime", "value_text", "value_json",
		"sort_order", "created_at", "updated_at", "deleted_at",
	}
	for _, col := range expected {
		assert.Contains(t, cols, col)
	}
}

func TestStructToMap_AttributeValue(t *testing.T) {
	now := time.Now().UTC()
	d := decimal.RequireFromString("3.75")
	v := eav.AttributeValue{
		ID:           id.New(),
		AttributeID:  id.New(),
		EntityType:   "User",
		EntityID:     "u-1",
		ValueDecimal: decimal.NullDecimal{Decimal: d, Valid: true},
		SortOrder:    2,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	m := StructToMap(v)

	assert.Equal(t, v.ID, m["id"])
	assert.Equal(t, "User", m["entity_type"])
	assert.Equal(t, "u-1", m["entity_id"])
	assert.Equal(t, v.ValueDecimal, m["value_decimal"])
	assert.Equal(t, 2, m["sort_order"])
	assert.Nil(t, m["value_string"])
}
