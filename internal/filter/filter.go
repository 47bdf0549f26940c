// Package filter selects API records with CEL expressions such as
//
//	record.scope["kubernetes.cluster.name"] == "prod"
//	record.vulnTotalBySeverity.critical > 0
//
// The record is bound to the variable "record" as a map decoded from JSON.
package filter

import (
	"fmt"

	"github.com/buemura/sectools/pkg/types"
	"github.com/google/cel-go/cel"
)

// Filter is a compiled boolean expression over one record.
type Filter struct {
	expr    string
	program cel.Program
}

// Compile parses and type-checks expr. The expression must produce a bool.
func Compile(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter expression must return a boolean, got %v", out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.expr }

// Match evaluates the filter against r.
func (f *Filter) Match(r types.Record) (bool, error) {
	m, err := r.Map()
	if err != nil {
		return false, err
	}

	out, _, err := f.program.Eval(map[string]any{"record": m})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q: %w", f.expr, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q did not return a boolean: %v", f.expr, out.Value())
	}
	return matched, nil
}
