// Package template implements lazy substitution in node configuration: double-brace
// markers referencing upstream outputs and global variables, resolved via an embedded
// ECMAScript expression evaluator.
//
// Rather than hand-rolling an expression mini-language, each {{ expr }} body is evaluated
// as a JavaScript expression in a github.com/dop251/goja runtime. Binding Go maps as goja
// objects gives "nodes['start'].data.value" / "nodes.start.data.value" style access for
// free, without reimplementing a dict-accessor wrapper by hand.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

const maxIterations = 10

var marker = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// OutputLookup resolves (nodeID, path) against the running Context; path may be empty.
type OutputLookup func(nodeID, path string) (any, error)

// GlobalLookup resolves (name, path) against the running Context's globals; name may be
// empty to return the whole globals map.
type GlobalLookup func(name, path string) (any, error)

// Warner receives a warning when the iteration cap is exhausted with markers still present.
type Warner func(message string)

// Resolver renders templates against a live Context view, refreshed by the engine after
// each sequential-phase node completes.
type Resolver struct {
	outputs GlobalGetters
	warn    Warner
}

// GlobalGetters bundles the accessors the resolver needs from the engine/context without
// importing core/engine or core/wfcontext directly (keeps this package a leaf dependency).
type GlobalGetters struct {
	GetNodeOutput OutputLookup
	GetGlobal     GlobalLookup
	Engine        any
}

// New constructs a Resolver. warn may be nil.
func New(getters GlobalGetters, warn Warner) *Resolver {
	return &Resolver{outputs: getters, warn: warn}
}

// Render substitutes every {{ expr }} marker in text, re-rendering the result while markers
// remain, up to maxIterations. On cap exhaustion with markers still present, it warns and
// returns the partial result rather than failing.
func (r *Resolver) Render(text string, locals map[string]any) (string, error) {
	current := text
	for iter := 0; iter < maxIterations; iter++ {
		if !strings.Contains(current, "{{") {
			return current, nil
		}
		rendered, err := r.renderOnce(current, locals)
		if err != nil {
			return "", err
		}
		if rendered == current {
			return rendered, nil
		}
		current = rendered
	}
	if strings.Contains(current, "{{") {
		r.warnf("template recursion reached the iteration cap; result may still contain unresolved markers")
	}
	return current, nil
}

func (r *Resolver) renderOnce(text string, locals map[string]any) (string, error) {
	var evalErr error
	out := marker.ReplaceAllStringFunc(text, func(match string) string {
		if evalErr != nil {
			return match
		}
		sub := marker.FindStringSubmatch(match)
		expr := sub[1]
		val, err := r.eval(expr, locals)
		if err != nil {
			evalErr = fmt.Errorf("render %q: %w", expr, err)
			return match
		}
		return toDisplayString(val)
	})
	if evalErr != nil {
		return "", evalErr
	}
	return out, nil
}

func (r *Resolver) eval(expr string, locals map[string]any) (any, error) {
	vm := goja.New()

	if err := vm.Set("nodes", newNodeAccessor(vm, r.outputs.GetNodeOutput)); err != nil {
		return nil, err
	}
	if err := vm.Set("get_node_output", func(nodeID string, field ...string) any {
		path := ""
		if len(field) > 0 {
			path = field[0]
		}
		v, err := r.outputs.GetNodeOutput(nodeID, path)
		if err != nil {
			return nil
		}
		return v
	}); err != nil {
		return nil, err
	}

	globalsAccessor := newGlobalAccessor(vm, r.outputs.GetGlobal)
	if err := vm.Set("c", globalsAccessor); err != nil {
		return nil, err
	}
	if err := vm.Set("context", globalsAccessor); err != nil {
		return nil, err
	}
	if err := vm.Set("engine", r.outputs.Engine); err != nil {
		return nil, err
	}
	for k, v := range locals {
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}

	val, err := vm.RunString(expr)
	if err != nil {
		return nil, err
	}
	return val.Export(), nil
}

func (r *Resolver) warnf(format string, args ...any) {
	if r.warn != nil {
		r.warn(fmt.Sprintf(format, args...))
	}
}

func toDisplayString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// ReparseLiteral recovers the typed value a fully-rendered template string represents: a
// trimmed, lowercase "true"/"false"/"null"/"none" becomes bool/nil; an all-digit string
// becomes int64; a string with exactly one decimal point, otherwise all digits, becomes
// float64; anything else is returned unchanged.
func ReparseLiteral(s string) any {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	switch lower {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}
	if trimmed != "" && isAllDigits(trimmed) {
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
	}
	if isFloatLiteral(trimmed) {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	}
	return s
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isFloatLiteral(s string) bool {
	dotted := strings.Replace(s, ".", "", 1)
	return strings.Count(s, ".") == 1 && isAllDigits(dotted)
}
