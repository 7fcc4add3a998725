package action

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// tagPattern matches <&name> and <&name.path> placeholders (§4.7 step 3).
var tagPattern = regexp.MustCompile(`<&([a-zA-Z0-9_.]+)>`)

// templater substitutes <&...> placeholders against a flat variable map,
// grounded on the teacher's TemplateProcessor
// (internal/application/executor/template.go): compile each distinct
// placeholder expression once via expr-lang and cache the program, rather
// than a one-shot string.Replace per call. Using a compiled expression
// instead of a literal map lookup also lets an extra named tag carry a
// dotted path (<&target.name>) without this package growing its own
// nested-accessor code.
type templater struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newTemplater() *templater {
	return &templater{cache: make(map[string]*vm.Program)}
}

// substitute replaces every <&...> placeholder in body with its value from
// vars, lenient mode: an unknown or failing placeholder is left unchanged
// (matching the teacher's non-strict template fallback).
func (t *templater) substitute(body string, vars map[string]any) string {
	return tagPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := tagPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		program, err := t.compiled(sub[1])
		if err != nil {
			return match
		}
		out, err := expr.Run(program, vars)
		if err != nil || out == nil {
			return match
		}
		return fmt.Sprint(out)
	})
}

func (t *templater) compiled(expression string) (*vm.Program, error) {
	t.mu.RLock()
	program, ok := t.cache[expression]
	t.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling placeholder %q: %w", expression, err)
	}

	t.mu.Lock()
	t.cache[expression] = program
	t.mu.Unlock()
	return program, nil
}
