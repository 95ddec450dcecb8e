package eav

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alma/internal/core/apperror"
)

func decp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidationRules_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rules   ValidationRules
		vt      ValueType
		wantErr bool
	}{
		{"min max on decimal", ValidationRules{Min: decp("0"), Max: decp("4")}, TypeDecimal, false},
		{"min on integer", ValidationRules{Min: decp("1")}, TypeInteger, false},
		{"min on string", ValidationRules{Min: decp("1")}, TypeString, true},
		{"enum on string", ValidationRules{Enum: []string{"a", "b"}}, TypeString, false},
		{"enum on boolean", ValidationRules{Enum: []string{"a"}}, TypeBoolean, true},
		{"min greater than max", ValidationRules{Min: decp("5"), Max: decp("1")}, TypeInteger, true},
		{"bad pattern", ValidationRules{Pattern: "(unclosed"}, TypeString, true},
		{"good pattern", ValidationRules{Pattern: `^[A-Z]+$`}, TypeString, false},
		{"bad cel expr", ValidationRules{Expr: "value >><< 1"}, TypeInteger, true},
		{"good cel expr", ValidationRules{Expr: "value > 0"}, TypeInteger, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Validate(tt.vt)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationRules_Apply_NamesViolatedRule(t *testing.T) {
	tests := []struct {
		name     string
		rules    ValidationRules
		vt       ValueType
		native   any
		wantRule string
	}{
		{"below min", ValidationRules{Min: decp("0")}, TypeDecimal, decimal.RequireFromString("-1"), RuleMin},
		{"above max", ValidationRules{Max: decp("4")}, TypeDecimal, decimal.RequireFromString("4.5"), RuleMax},
		{"integer above max", ValidationRules{Max: decp("10")}, TypeInteger, int64(11), RuleMax},
		{"outside enum", ValidationRules{Enum: []string{"enrolled", "graduated"}}, TypeString, "expelled", RuleEnum},
		{"pattern mismatch", ValidationRules{Pattern: `^\+?[0-9]+$`}, TypeString, "call me", RulePattern},
		{"expr false", ValidationRules{Expr: "value >= 18"}, TypeInteger, int64(16), RuleExpr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Apply("attr", tt.vt, tt.native)
			require.Error(t, err)

			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.wantRule, appErr.Details["rule"])
			assert.Equal(t, "attr", appErr.Details["attribute"])
		})
	}
}

func TestValidationRules_Apply_PassesValidValues(t *testing.T) {
	rules := ValidationRules{Min: decp("0"), Max: decp("4")}
	assert.NoError(t, rules.Apply("gpa", TypeDecimal, decimal.RequireFromString("3.7")))

	rules = ValidationRules{Enum: []string{"a", "b"}, Pattern: `^[ab]$`}
	assert.NoError(t, rules.Apply("letter", TypeString, "a"))

	rules = ValidationRules{Expr: "value == 0.0 || value >= 1.0"}
	assert.NoError(t, rules.Apply("load", TypeDecimal, decimal.Zero))
	assert.NoError(t, rules.Apply("load", TypeDecimal, decimal.RequireFromString("12.5")))
	assert.Error(t, rules.Apply("load", TypeDecimal, decimal.RequireFromString("0.5")))
}

func TestValidationRules_ScanPreservesPrecision(t *testing.T) {
	var rules ValidationRules
	require.NoError(t, rules.Scan([]byte(`{"min":"0.000001","max":"4","enum":null}`)))

	require.NotNil(t, rules.Min)
	assert.True(t, rules.Min.Equal(decimal.RequireFromString("0.000001")))
	require.NotNil(t, rules.Max)
	assert.True(t, rules.Max.Equal(decimal.NewFromInt(4)))

	var empty ValidationRules
	require.NoError(t, empty.Scan(nil))
	assert.True(t, empty.IsZero())
}
