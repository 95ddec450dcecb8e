package eav

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"alma/internal/core/apperror"
)

// Rule names, reported back to callers on violation.
const (
	RuleMin     = "min"
	RuleMax     = "max"
	RuleEnum    = "enum"
	RulePattern = "pattern"
	RuleExpr    = "expr"
)

// ValidationRules is the declarative rule set attached to an attribute
// definition, stored as JSONB. Which rules apply depends on the value type:
// min/max for numeric types, enum/pattern for textual types, expr for any.
//
// Enforcement happens in the value store at write time; the catalog only
// declares the rules.
type ValidationRules struct {
	Min     *decimal.Decimal `json:"min,omitempty"`
	Max     *decimal.Decimal `json:"max,omitempty"`
	Enum    []string         `json:"enum,omitempty"`
	Pattern string           `json:"pattern,omitempty"`

	// Expr is a CEL expression over the variable `value`; it must evaluate
	// to a boolean. Example: `value.startsWith("A") && value.size() < 10`.
	Expr string `json:"expr,omitempty"`
}

// IsZero reports whether no rule is declared.
func (r ValidationRules) IsZero() bool {
	return r.Min == nil && r.Max == nil && len(r.Enum) == 0 &&
		r.Pattern == "" && r.Expr == ""
}

// Scan implements sql.Scanner for reading from PostgreSQL JSONB.
// Uses a decoder with UseNumber() so min/max keep their precision.
func (r *ValidationRules) Scan(src any) error {
	if src == nil {
		*r = ValidationRules{}
		return nil
	}

	var source []byte
	switch v := src.(type) {
	case []byte:
		source = v
	case string:
		source = []byte(v)
	default:
		return fmt.Errorf("unsupported type for ValidationRules: %T", src)
	}

	if len(source) == 0 {
		*r = ValidationRules{}
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(source))
	decoder.UseNumber()
	return decoder.Decode(r)
}

// Value implements driver.Valuer for writing to PostgreSQL JSONB.
func (r ValidationRules) Value() (driver.Value, error) {
	if r.IsZero() {
		return nil, nil
	}
	return json.Marshal(r)
}

// Validate checks that the declared rules are consistent with the value type.
func (r ValidationRules) Validate(vt ValueType) error {
	if (r.Min != nil || r.Max != nil) && !vt.IsNumeric() {
		return apperror.NewValidation("min/max rules require a numeric value type").
			WithDetail("valueType", string(vt))
	}
	if (len(r.Enum) > 0 || r.Pattern != "") && !vt.IsTextual() {
		return apperror.NewValidation("enum/pattern rules require a textual value type").
			WithDetail("valueType", string(vt))
	}
	if r.Min != nil && r.Max != nil && r.Min.GreaterThan(*r.Max) {
		return apperror.NewValidation("min rule exceeds max rule").
			WithDetail("min", r.Min.String()).
			WithDetail("max", r.Max.String())
	}
	if r.Pattern != "" {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return apperror.NewValidation("pattern rule is not a valid regular expression").
				WithDetail("pattern", r.Pattern).
				WithCause(err)
		}
	}
	if r.Expr != "" {
		if _, err := compileExpr(r.Expr); err != nil {
			return apperror.NewValidation("expr rule is not a valid CEL expression").
				WithDetail("expr", r.Expr).
				WithCause(err)
		}
	}
	return nil
}

// Apply enforces the rule set against an already-coerced native value.
// The returned error names the attribute and the violated rule.
func (r ValidationRules) Apply(attribute string, vt ValueType, native any) error {
	if r.IsZero() {
		return nil
	}

	if r.Min != nil || r.Max != nil {
		num, ok := asDecimal(native)
		if ok {
			if r.Min != nil && num.LessThan(*r.Min) {
				return apperror.NewRuleViolation(attribute, RuleMin, native).
					WithDetail("min", r.Min.String())
			}
			if r.Max != nil && num.GreaterThan(*r.Max) {
				return apperror.NewRuleViolation(attribute, RuleMax, native).
					WithDetail("max", r.Max.String())
			}
		}
	}

	if len(r.Enum) > 0 {
		s, ok := native.(string)
		if ok && !contains(r.Enum, s) {
			return apperror.NewRuleViolation(attribute, RuleEnum, native).
				WithDetail("allowed", r.Enum)
		}
	}

	if r.Pattern != "" {
		if s, ok := native.(string); ok {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return apperror.NewRuleViolation(attribute, RulePattern, native).
					WithDetail("pattern", r.Pattern).WithCause(err)
			}
			if !re.MatchString(s) {
				return apperror.NewRuleViolation(attribute, RulePattern, native).
					WithDetail("pattern", r.Pattern)
			}
		}
	}

	if r.Expr != "" {
		ok, err := evalExpr(r.Expr, native)
		if err != nil {
			return apperror.NewRuleViolation(attribute, RuleExpr, native).
				WithDetail("expr", r.Expr).WithCause(err)
		}
		if !ok {
			return apperror.NewRuleViolation(attribute, RuleExpr, native).
				WithDetail("expr", r.Expr)
		}
	}

	return nil
}

func asDecimal(native any) (decimal.Decimal, bool) {
	switch v := native.(type) {
	case decimal.Decimal:
		return v, true
	case int64:
		return decimal.NewFromInt(v), true
	}
	return decimal.Zero, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// --- CEL expression rules ---

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error

	celPrograms sync.Map // expr string -> cel.Program
)

func exprEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(cel.Variable("value", cel.DynType))
	})
	return celEnv, celEnvErr
}

// compileExpr compiles and caches a CEL program for the given expression.
// Compilation is expensive relative to evaluation, and the same small rule
// set is applied on every write.
func compileExpr(expr string) (cel.Program, error) {
	if cached, ok := celPrograms.Load(expr); ok {
		return cached.(cel.Program), nil
	}

	env, err := exprEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}

	celPrograms.Store(expr, prg)
	return prg, nil
}

func evalExpr(expr string, native any) (bool, error) {
	prg, err := compileExpr(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{"value": celValue(native)})
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to a boolean")
	}
	return result, nil
}

// celValue maps canonical native values onto types CEL understands.
func celValue(native any) any {
	switch v := native.(type) {
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	case time.Time:
		return v
	default:
		return native
	}
}
