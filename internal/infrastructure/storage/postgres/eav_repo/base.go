// Package eav_repo provides the PostgreSQL repositories behind the EAV
// engine: entity types, attribute definitions, and the two value table
// strategies.
package eav_repo

import (
	"github.com/Masterminds/squirrel"
)

// Table names owned by this package.
const (
	entityTypesTable      = "eav_entity_types"
	definitionsTable      = "eav_attribute_definitions"
	genericValuesTable    = "eav_attribute_values"
	assessmentValuesTable = "assessment_attribute_values"
)

// builder returns a squirrel builder with PostgreSQL placeholders.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// filterColumns keeps only the map entries whose key is in cols. Used when
// a struct carries more db-tagged fields than the target table has columns
// (the entity-specific value table drops entity_type).
func filterColumns(data map[string]any, cols []string) map[string]any {
	filtered := make(map[string]any, len(cols))
	for _, col := range cols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}
	return filtered
}
