package compiler

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/veil/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// CompileSource compiles CUE rule-set source. filename is used in error
// positions only.
//
// The source is unified with the embedded #RuleSet schema before decoding,
// so type errors carry CUE positions:
//
//	settings: {stealth_mode: true}
//	rule: "Math.random": {after: [{action: "clamp", max: 0}]}
func CompileSource(src []byte, filename string) (*ir.RuleSet, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileValue(v)
}

// CompileFile reads and compiles a single CUE file.
func CompileFile(path string) (*ir.RuleSet, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}
	return CompileSource(src, path)
}

// CompileDir loads every CUE file of the package in dir and compiles the
// unified value.
func CompileDir(dir string) (*ir.RuleSet, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileValue(v)
}

// CompileValue decodes an already built CUE value into a RuleSet sorted by
// path.
func CompileValue(v cue.Value) (*ir.RuleSet, error) {
	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("rule-set schema: %w", err)
	}
	v = schema.LookupPath(cue.ParsePath("#RuleSet")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	rs := &ir.RuleSet{}

	if sv := v.LookupPath(cue.ParsePath("settings")); sv.Exists() {
		if err := decodeJSON(sv, &rs.Settings); err != nil {
			return nil, &CompileError{Field: "settings", Message: err.Error(), Pos: sv.Pos()}
		}
	}

	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return rs, nil
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		spec, err := compileRule(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, spec)
	}

	sort.Slice(rs.Rules, func(i, j int) bool {
		return rs.Rules[i].Path < rs.Rules[j].Path
	})
	return rs, nil
}

// rawObservers mirrors #Observers. Actions stay as generic maps until their
// arguments are split out.
type rawObservers struct {
	Before  []map[string]any `json:"before"`
	After   []map[string]any `json:"after"`
	OnError []map[string]any `json:"on_error"`
}

type rawRule struct {
	rawObservers
	Kind     string                  `json:"kind"`
	Method   string                  `json:"method"`
	Methods  map[string]rawObservers `json:"methods"`
	Inactive bool                    `json:"inactive"`
}

func compileRule(path string, v cue.Value) (ir.RuleSpec, error) {
	var raw rawRule
	if err := decodeJSON(v, &raw); err != nil {
		return ir.RuleSpec{}, &CompileError{Field: "rule." + path, Message: err.Error(), Pos: v.Pos()}
	}

	spec := ir.RuleSpec{
		Path:     path,
		Kind:     raw.Kind,
		Method:   raw.Method,
		Inactive: raw.Inactive,
		Before:   toActions(raw.Before),
		After:    toActions(raw.After),
		OnError:  toActions(raw.OnError),
	}
	if len(raw.Methods) > 0 {
		spec.Methods = make(map[string]ir.MethodSpec, len(raw.Methods))
		for name, m := range raw.Methods {
			spec.Methods[name] = ir.MethodSpec{
				Before:  toActions(m.Before),
				After:   toActions(m.After),
				OnError: toActions(m.OnError),
			}
		}
	}
	return spec, nil
}

// toActions splits each {action: name, ...} struct into the action name and
// its remaining fields.
func toActions(raw []map[string]any) []ir.ActionSpec {
	if len(raw) == 0 {
		return nil
	}
	out := make([]ir.ActionSpec, 0, len(raw))
	for _, m := range raw {
		a := ir.ActionSpec{}
		a.Action, _ = m["action"].(string)
		for k, val := range m {
			if k == "action" {
				continue
			}
			if a.Args == nil {
				a.Args = make(map[string]any, len(m)-1)
			}
			a.Args[k] = val
		}
		out = append(out, a)
	}
	return out
}

// decodeJSON round-trips through JSON so numbers decode as float64, the
// representation the action catalog works with.
func decodeJSON(v cue.Value, dst any) error {
	b, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
