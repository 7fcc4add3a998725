package dialogue

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// gateEvaluator compiles and caches small boolean expressions over a flat
// variable map, grounded on the teacher's ConditionEvaluator
// (internal/application/executor/conditions.go): compile once per distinct
// expression string, run many times against different variable sets. Used
// here for the skill-compatibility gate of §4.6, which is a single fixed
// expression evaluated on every incoming roll.
type gateEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newGateEvaluator() *gateEvaluator {
	return &gateEvaluator{cache: make(map[string]*vm.Program)}
}

func (g *gateEvaluator) eval(expression string, vars map[string]any) (bool, error) {
	program, err := g.compiled(expression)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not return a boolean", expression)
	}
	return b, nil
}

func (g *gateEvaluator) compiled(expression string) (*vm.Program, error) {
	g.mu.RLock()
	program, ok := g.cache[expression]
	g.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(map[string]any{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", expression, err)
	}

	g.mu.Lock()
	g.cache[expression] = program
	g.mu.Unlock()
	return program, nil
}
