// Package eav implements the Entity-Attribute-Value engine: a schema-less
// mechanism letting registered entities carry an open-ended, admin-defined
// set of typed attributes without migrations.
//
// Layers, top to bottom: Service (façade) -> Store (typed value read/write)
// -> Catalog (attribute definitions) -> Registry (entity types). Persistence
// lives behind repository interfaces implemented in
// infrastructure/storage/postgres/eav_repo.
package eav

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"alma/internal/core/apperror"
	"alma/internal/core/id"
)

// EntityType declares a logical entity class participating in EAV storage.
// Created during setup, soft-deleted on rollback, otherwise long-lived.
type EntityType struct {
	ID id.ID `db:"id" json:"id"`

	// Name is unique among non-deleted rows, e.g. "User".
	Name string `db:"name" json:"name"`

	// TableName is the backing relational table of the domain entity.
	// Informational for the generic strategy; used for existence checks
	// and orphan pruning.
	TableName string `db:"table_name" json:"tableName"`

	Description *string `db:"description" json:"description,omitempty"`

	IsActive bool `db:"is_active" json:"isActive"`

	// UseEntitySpecificTable selects the dedicated value table strategy
	// (real foreign key, ON DELETE CASCADE) over the shared polymorphic one.
	UseEntitySpecificTable bool `db:"use_entity_specific_table" json:"useEntitySpecificTable"`

	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// NewEntityType creates an active EntityType with a generated id.
func NewEntityType(name, tableName string) *EntityType {
	return &EntityType{
		ID:        id.New(),
		Name:      name,
		TableName: tableName,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks entity type invariants.
func (et *EntityType) Validate(ctx context.Context) error {
	if et.Name == "" {
		return apperror.NewValidation("entity type name is required").
			WithDetail("field", "name")
	}
	return nil
}

// AttributeDefinition is the schema for one named attribute of one entity
// type. (entityTypeId, name) is unique among non-deleted rows.
type AttributeDefinition struct {
	ID           id.ID `db:"id" json:"id"`
	EntityTypeID id.ID `db:"entity_type_id" json:"entityTypeId"`

	// Name is the machine key, e.g. "student_gpa".
	Name string `db:"name" json:"name"`

	DisplayName string  `db:"display_name" json:"displayName"`
	Description *string `db:"description" json:"description,omitempty"`

	// ValueType is immutable once values exist; Catalog.Define rejects
	// redefinition under a different type.
	ValueType ValueType `db:"value_type" json:"valueType"`

	IsRequired    bool `db:"is_required" json:"isRequired"`
	IsMultiValued bool `db:"is_multi_valued" json:"isMultiValued"`

	// DefaultValue is stored as a string and coerced through ValueType
	// on read for entities with no stored row.
	DefaultValue *string `db:"default_value" json:"defaultValue,omitempty"`

	ValidationRules ValidationRules `db:"validation_rules" json:"validationRules"`

	SortOrder int  `db:"sort_order" json:"sortOrder"`
	IsActive  bool `db:"is_active" json:"isActive"`

	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// Validate checks definition invariants, including rule/type consistency
// and default value coercibility.
func (d *AttributeDefinition) Validate(ctx context.Context) error {
	if d.Name == "" {
		return apperror.NewValidation("attribute name is required").
			WithDetail("field", "name")
	}
	if id.IsNil(d.EntityTypeID) {
		return apperror.NewValidation("entity type id is required").
			WithDetail("field", "entityTypeId").
			WithDetail("attribute", d.Name)
	}
	if !d.ValueType.IsValid() {
		return apperror.NewValidation("unsupported value type").
			WithDetail("field", "valueType").
			WithDetail("value", string(d.ValueType)).
			WithDetail("attribute", d.Name)
	}
	if err := d.ValidationRules.Validate(d.ValueType); err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			return appErr.WithDetail("attribute", d.Name)
		}
		return err
	}
	if d.DefaultValue != nil {
		if _, err := Coerce(d.ValueType, *d.DefaultValue); err != nil {
			return apperror.NewValidation("default value is not coercible to the value type").
				WithDetail("attribute", d.Name).
				WithDetail("valueType", string(d.ValueType)).
				WithCause(err)
		}
	}
	return nil
}

// DefaultNative returns the coerced default value, or (nil, false) when no
// default is declared.
func (d *AttributeDefinition) DefaultNative() (any, bool) {
	if d.DefaultValue == nil {
		return nil, false
	}
	v, err := Coerce(d.ValueType, *d.DefaultValue)
	if err != nil {
		// Rejected at definition time; a stored invalid default is a data bug.
		return nil, false
	}
	return v, true
}

// AttributeValue is one stored value of one attribute for one entity
// instance. Exactly one typed column is populated per row, matching the
// owning definition's ValueType.
//
// In the generic strategy EntityType/EntityID form the polymorphic pointer;
// entity-specific tables drop EntityType and use a real foreign key.
type AttributeValue struct {
	ID          id.ID  `db:"id" json:"id"`
	AttributeID id.ID  `db:"attribute_id" json:"attributeId"`
	EntityType  string `db:"entity_type" json:"entityType"`
	EntityID    string `db:"entity_id" json:"entityId"`

	ValueString   *string             `db:"value_string" json:"valueString,omitempty"`
	ValueInteger  *int64              `db:"value_integer" json:"valueInteger,omitempty"`
	ValueDecimal  decimal.NullDecimal `db:"value_decimal" json:"valueDecimal,omitempty"`
	ValueBoolean  *bool               `db:"value_boolean" json:"valueBoolean,omitempty"`
	ValueDate     *time.Time          `db:"value_date" json:"valueDate,omitempty"`
	ValueDatetime *time.Time          `db:"value_datetime" json:"valueDatetime,omitempty"`
	ValueText     *string             `db:"value_text" json:"valueText,omitempty"`
	ValueJSON     json.RawMessage     `db:"value_json" json:"valueJson,omitempty"`

	// SortOrder positions rows of multi-valued attributes.
	SortOrder int `db:"sort_order" json:"sortOrder"`

	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// clearTyped resets every typed column.
func (v *AttributeValue) clearTyped() {
	v.ValueString = nil
	v.ValueInteger = nil
	v.ValueDecimal = decimal.NullDecimal{}
	v.ValueBoolean = nil
	v.ValueDate = nil
	v.ValueDatetime = nil
	v.ValueText = nil
	v.ValueJSON = nil
}

// writeTyped populates the one typed column selected by vt with an
// already-coerced native value. All column dispatch on write goes through
// here; callers never branch on the value type themselves.
func (v *AttributeValue) writeTyped(vt ValueType, native any) error {
	v.clearTyped()

	switch vt {
	case TypeString:
		s, ok := native.(string)
		if !ok {
			return fmt.Errorf("writeTyped: %T is not a string", native)
		}
		v.ValueString = &s
	case TypeText:
		s, ok := native.(string)
		if !ok {
			return fmt.Errorf("writeTyped: %T is not a string", native)
		}
		v.ValueText = &s
	case TypeInteger:
		i, ok := native.(int64)
		if !ok {
			return fmt.Errorf("writeTyped: %T is not an int64", native)
		}
		v.ValueInteger = &i
	case TypeDecimal:
		d, ok := native.(decimal.Decimal)
		if !ok {
			return fmt.Errorf("writeTyped: %T is not a decimal", native)
		}
		v.ValueDecimal = decimal.NullDecimal{Decimal: d, Valid: true}
	case TypeBoolean:
		b, ok := native.(bool)
		if !ok {
			return fmt.Errorf("writeTyped: %T is not a bool", native)
		}
		v.ValueBoolean = &b
	case TypeDate:
		t, ok := native.(time.Time)
		if !ok {
			return fmt.Errorf("writeTyped: %T is not a time", native)
		}
		v.ValueDate = &t
	case TypeDatetime:
		t, ok := native.(time.Time)
		if !ok {
			return fmt.Errorf("writeTyped: %T is not a time", native)
		}
		v.ValueDatetime = &t
	case TypeJSON:
		raw, err := json.Marshal(native)
		if err != nil {
			return fmt.Errorf("writeTyped: marshal json value: %w", err)
		}
		v.ValueJSON = raw
	default:
		return fmt.Errorf("writeTyped: unsupported value type %q", vt)
	}

	return nil
}

// readTyped is the inverse of writeTyped: it reads the column selected by
// the definition's value type (not by inspecting which column happens to be
// non-null, to stay robust against accidentally populated columns) and
// returns the native value. A nil result means the row carries no value for
// the declared type.
func (v *AttributeValue) readTyped(vt ValueType) (any, error) {
	switch vt {
	case TypeString:
		if v.ValueString == nil {
			return nil, nil
		}
		return *v.ValueString, nil
	case TypeText:
		if v.ValueText == nil {
			return nil, nil
		}
		return *v.ValueText, nil
	case TypeInteger:
		if v.ValueInteger == nil {
			return nil, nil
		}
		return *v.ValueInteger, nil
	case TypeDecimal:
		if !v.ValueDecimal.Valid {
			return nil, nil
		}
		return v.ValueDecimal.Decimal, nil
	case TypeBoolean:
		if v.ValueBoolean == nil {
			return nil, nil
		}
		return *v.ValueBoolean, nil
	case TypeDate:
		if v.ValueDate == nil {
			return nil, nil
		}
		return v.ValueDate.UTC(), nil
	case TypeDatetime:
		if v.ValueDatetime == nil {
			return nil, nil
		}
		return v.ValueDatetime.UTC(), nil
	case TypeJSON:
		if len(v.ValueJSON) == 0 {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(v.ValueJSON, &out); err != nil {
			return nil, fmt.Errorf("readTyped: unmarshal json value: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("readTyped: unsupported value type %q", vt)
	}
}
