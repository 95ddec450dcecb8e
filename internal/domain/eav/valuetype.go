package eav

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueType is the declared type of an attribute. Every stored value lives
// in exactly one typed column selected by this type (wide sparse row).
type ValueType string

const (
	TypeString   ValueType = "string"
	TypeInteger  ValueType = "integer"
	TypeDecimal  ValueType = "decimal"
	TypeBoolean  ValueType = "boolean"
	TypeDate     ValueType = "date"
	TypeDatetime ValueType = "datetime"
	TypeText     ValueType = "text"
	TypeJSON     ValueType = "json"
)

// Decimal storage semantics: DECIMAL(18,6). Values are rounded to
// DecimalScale fractional digits; the integer part must fit 18 digits.
const DecimalScale = 6

// decimalMax is 10^18, the exclusive bound for the integer part.
var decimalMax = decimal.New(1, 18)

const (
	dateLayout = "2006-01-02"
)

// IsValid reports whether vt is a supported value type.
func (vt ValueType) IsValid() bool {
	switch vt {
	case TypeString, TypeInteger, TypeDecimal, TypeBoolean,
		TypeDate, TypeDatetime, TypeText, TypeJSON:
		return true
	}
	return false
}

// IsNumeric reports whether min/max rules apply to this type.
func (vt ValueType) IsNumeric() bool {
	return vt == TypeInteger || vt == TypeDecimal
}

// IsTextual reports whether enum/pattern rules apply to this type.
func (vt ValueType) IsTextual() bool {
	return vt == TypeString || vt == TypeText
}

// Coerce converts a raw caller-supplied value into the canonical native
// representation for vt:
//
//	string, text -> string
//	integer      -> int64
//	decimal      -> decimal.Decimal (rounded to DecimalScale)
//	boolean      -> bool
//	date         -> time.Time (UTC midnight)
//	datetime     -> time.Time (UTC)
//	json         -> any JSON-marshalable value
//
// A value that cannot be represented as vt is a coercion error, never a
// silent default. Callers wrap the error with the attribute name.
func Coerce(vt ValueType, raw any) (any, error) {
	if raw == nil {
		return nil, fmt.Errorf("value is nil")
	}

	switch vt {
	case TypeString, TypeText:
		return coerceString(raw)
	case TypeInteger:
		return coerceInteger(raw)
	case TypeDecimal:
		return coerceDecimal(raw)
	case TypeBoolean:
		return coerceBoolean(raw)
	case TypeDate:
		t, err := coerceTime(raw, dateLayout)
		if err != nil {
			return nil, err
		}
		return t.Truncate(24 * time.Hour), nil
	case TypeDatetime:
		return coerceTime(raw, time.RFC3339)
	case TypeJSON:
		// Any marshalable value is acceptable; reject what encoding/json cannot handle.
		if _, err := json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("value is not JSON-marshalable: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported value type %q", vt)
	}
}

func coerceString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("expected string, got %T", raw)
}

func coerceInteger(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		return v.Int64()
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("value %v has a fractional part", v)
		}
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse integer: %w", err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func coerceDecimal(raw any) (decimal.Decimal, error) {
	var d decimal.Decimal
	var err error

	switch v := raw.(type) {
	case decimal.Decimal:
		d = v
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		d = decimal.NewFromFloat(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	default:
		return decimal.Zero, fmt.Errorf("expected decimal, got %T", raw)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal: %w", err)
	}

	d = d.Round(DecimalScale)
	if d.Abs().GreaterThanOrEqual(decimalMax) {
		return decimal.Zero, fmt.Errorf("value %s exceeds DECIMAL(18,%d) range", d, DecimalScale)
	}
	return d, nil
}

func coerceBoolean(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "1":
			return true, nil
		case "false", "f", "0":
			return false, nil
		}
		return false, fmt.Errorf("string %q is not a boolean", v)
	}
	return false, fmt.Errorf("expected boolean, got %T", raw)
}

func coerceTime(raw any, layout string) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
		// Datetime columns accept date-only input as midnight.
		if layout == time.RFC3339 {
			if t, err := time.Parse(dateLayout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("string %q does not match %s", s, layout)
	}
	return time.Time{}, fmt.Errorf("expected time, got %T", raw)
}
