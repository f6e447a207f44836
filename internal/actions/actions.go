// Package actions is the catalog of named, parameterised observers that rule
// sets refer to.
//
// Each phase has its own catalog. Several actions in one phase compose left
// to right: before actions thread the argument list, after actions thread
// the result, and the first on_error action that supplies a value wins.
package actions

import (
	"fmt"
	"sort"

	"github.com/roach88/veil/internal/engine"
	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/logger"
	"github.com/roach88/veil/internal/namespace"
)

type (
	beforeStep func(args []any) ([]any, error)
	afterStep  func(result any, args []any) (any, error)
	errorStep  func(cause error, args []any) (any, error)
)

// env is what an action factory sees at build time.
type env struct {
	path string
	args Args
	log  logger.Logger
}

var (
	beforeCatalog = map[string]func(env) (beforeStep, error){
		"log_args":   newLogArgs,
		"set_arg":    newSetArg,
		"prefix_arg": newPrefixArg,
	}
	afterCatalog = map[string]func(env) (afterStep, error){
		"log_result":   newLogResult,
		"constant":     newConstant,
		"clamp":        newClamp,
		"scale":        newScale,
		"replace_text": newReplaceText,
		"json_set":     newJSONSet,
		"json_delete":  newJSONDelete,
		"json_pick":    newJSONPick,
	}
	errorCatalog = map[string]func(env) (errorStep, error){
		"log_error": newLogError,
		"fallback":  newFallback,
	}
)

// Names returns the action names accepted in phase, sorted.
func Names(phase string) []string {
	var names []string
	switch phase {
	case ir.PhaseBefore:
		for n := range beforeCatalog {
			names = append(names, n)
		}
	case ir.PhaseAfter:
		for n := range afterCatalog {
			names = append(names, n)
		}
	case ir.PhaseOnError:
		for n := range errorCatalog {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Known reports whether action exists in phase.
func Known(phase, action string) bool {
	switch phase {
	case ir.PhaseBefore:
		_, ok := beforeCatalog[action]
		return ok
	case ir.PhaseAfter:
		_, ok := afterCatalog[action]
		return ok
	case ir.PhaseOnError:
		_, ok := errorCatalog[action]
		return ok
	}
	return false
}

// Check builds a single action and discards it, reporting argument errors.
func Check(phase string, spec ir.ActionSpec) error {
	e := env{path: "", args: Args(spec.Args), log: logger.NewNop()}
	var err error
	switch phase {
	case ir.PhaseBefore:
		f, ok := beforeCatalog[spec.Action]
		if !ok {
			return unknownAction(phase, spec.Action)
		}
		_, err = f(e)
	case ir.PhaseAfter:
		f, ok := afterCatalog[spec.Action]
		if !ok {
			return unknownAction(phase, spec.Action)
		}
		_, err = f(e)
	case ir.PhaseOnError:
		f, ok := errorCatalog[spec.Action]
		if !ok {
			return unknownAction(phase, spec.Action)
		}
		_, err = f(e)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
	return err
}

// BuildError reports an action that could not be built.
type BuildError struct {
	Path   string
	Phase  string
	Index  int
	Action string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("rule %s: %s[%d] %s: %v", e.Path, e.Phase, e.Index, e.Action, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Build turns a declarative rule into an engine definition.
func Build(spec ir.RuleSpec, log logger.Logger) (engine.Definition, error) {
	if log == nil {
		log = logger.NewNop()
	}
	kind, ok := engine.ParseKind(spec.Kind)
	if !ok {
		return engine.Definition{}, fmt.Errorf("rule %s: unknown kind %q", spec.Path, spec.Kind)
	}

	obs, err := buildObservers(spec.Path, spec.Before, spec.After, spec.OnError, log)
	if err != nil {
		return engine.Definition{}, err
	}

	var methods map[string]engine.Observers
	if len(spec.Methods) > 0 {
		methods = make(map[string]engine.Observers, len(spec.Methods))
		for name, m := range spec.Methods {
			mobs, err := buildObservers(spec.Path+"#"+name, m.Before, m.After, m.OnError, log)
			if err != nil {
				return engine.Definition{}, err
			}
			methods[name] = mobs
		}
	}

	return engine.Definition{
		Path: spec.Path,
		Hook: engine.Hook{
			Method:      spec.Method,
			Kind:        kind,
			Observers:   obs,
			MethodHooks: methods,
			Inactive:    spec.Inactive,
		},
	}, nil
}

// BuildAll builds every rule of rs, stopping at the first error.
func BuildAll(rs *ir.RuleSet, log logger.Logger) ([]engine.Definition, error) {
	defs := make([]engine.Definition, 0, len(rs.Rules))
	for _, spec := range rs.Rules {
		d, err := Build(spec, log)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func buildObservers(path string, before, after, onError []ir.ActionSpec, log logger.Logger) (engine.Observers, error) {
	var obs engine.Observers

	if len(before) > 0 {
		steps := make([]beforeStep, 0, len(before))
		for i, a := range before {
			f, ok := beforeCatalog[a.Action]
			if !ok {
				return obs, &BuildError{Path: path, Phase: ir.PhaseBefore, Index: i, Action: a.Action, Err: unknownAction(ir.PhaseBefore, a.Action)}
			}
			s, err := f(env{path: path, args: Args(a.Args), log: log})
			if err != nil {
				return obs, &BuildError{Path: path, Phase: ir.PhaseBefore, Index: i, Action: a.Action, Err: err}
			}
			steps = append(steps, s)
		}
		obs.Before = func(args []any, _ *namespace.Function) ([]any, error) {
			cur := args
			for _, s := range steps {
				next, err := s(cur)
				if err != nil {
					return nil, err
				}
				if next != nil {
					cur = next
				}
			}
			return cur, nil
		}
	}

	if len(after) > 0 {
		steps := make([]afterStep, 0, len(after))
		for i, a := range after {
			f, ok := afterCatalog[a.Action]
			if !ok {
				return obs, &BuildError{Path: path, Phase: ir.PhaseAfter, Index: i, Action: a.Action, Err: unknownAction(ir.PhaseAfter, a.Action)}
			}
			s, err := f(env{path: path, args: Args(a.Args), log: log})
			if err != nil {
				return obs, &BuildError{Path: path, Phase: ir.PhaseAfter, Index: i, Action: a.Action, Err: err}
			}
			steps = append(steps, s)
		}
		obs.After = func(result any, args []any, _ *namespace.Function) (any, error) {
			cur := result
			for _, s := range steps {
				next, err := s(cur, args)
				if err != nil {
					return nil, err
				}
				if next != nil {
					cur = next
				}
			}
			return cur, nil
		}
	}

	if len(onError) > 0 {
		steps := make([]errorStep, 0, len(onError))
		for i, a := range onError {
			f, ok := errorCatalog[a.Action]
			if !ok {
				return obs, &BuildError{Path: path, Phase: ir.PhaseOnError, Index: i, Action: a.Action, Err: unknownAction(ir.PhaseOnError, a.Action)}
			}
			s, err := f(env{path: path, args: Args(a.Args), log: log})
			if err != nil {
				return obs, &BuildError{Path: path, Phase: ir.PhaseOnError, Index: i, Action: a.Action, Err: err}
			}
			steps = append(steps, s)
		}
		obs.OnError = func(cause error, args []any, _ *namespace.Function) (any, error) {
			for _, s := range steps {
				v, err := s(cause, args)
				if err != nil {
					return nil, err
				}
				if v != nil {
					return v, nil
				}
			}
			return nil, nil
		}
	}

	return obs, nil
}

func unknownAction(phase, action string) error {
	return fmt.Errorf("unknown %s action %q", phase, action)
}
