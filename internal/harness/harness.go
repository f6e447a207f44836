package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/roach88/veil/internal/actions"
	"github.com/roach88/veil/internal/engine"
	"github.com/roach88/veil/internal/future"
	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/logger"
	"github.com/roach88/veil/internal/namespace"
	"github.com/roach88/veil/internal/store"
	"github.com/roach88/veil/internal/testutil"
)

// DefaultSession is the session ID used when a scenario names none.
const DefaultSession = "test-session"

// Harness is the test execution engine.
// It runs one scenario against a fresh namespace with a mock clock, so the
// journal it produces is identical on every run.
type Harness struct {
	eng   *engine.Engine
	fx    *fixtureSet
	clk   *clock.Mock
	log   logger.Logger
	saved map[string]any
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	store  *store.Store
	log    logger.Logger
	config engine.Config
}

// WithStore journals into s instead of a fresh in-memory store. The caller
// keeps ownership of s.
func WithStore(s *store.Store) Option {
	return func(c *runConfig) {
		c.store = s
	}
}

// WithLogger routes harness and engine logs to l.
func WithLogger(l logger.Logger) Option {
	return func(c *runConfig) {
		c.log = l
	}
}

// WithBaseConfig sets the engine configuration that scenario settings are
// merged over. Defaults to engine.DefaultConfig.
func WithBaseConfig(cfg engine.Config) Option {
	return func(c *runConfig) {
		c.config = cfg
	}
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Open a fresh in-memory store (unless WithStore is given) and write the
//     session row
//  2. Build the fixture namespace
//  3. Create an engine journaling into the store and register the rules
//  4. Execute steps, checking expect clauses
//  5. Read the trace back from the store and evaluate assertions
//
// Run returns an error only when the scenario cannot be executed at all;
// failed expectations and assertions are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	rc := runConfig{log: logger.NewNop(), config: engine.DefaultConfig()}
	for _, opt := range opts {
		opt(&rc)
	}

	st := rc.store
	if st == nil {
		var err error
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	cfg, err := rc.config.Merge(scenario.Settings)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	rules := make([]ir.RuleSpec, len(scenario.Rules))
	for i, r := range scenario.Rules {
		rules[i] = normalizeRule(r)
	}
	rs := ir.RuleSet{Settings: scenario.Settings, Rules: rules}
	hash, err := ir.RuleSetHash(rs)
	if err != nil {
		return nil, fmt.Errorf("failed to hash rule set: %w", err)
	}

	session := scenario.Session
	if session == "" {
		session = DefaultSession
	}

	ctx := context.Background()
	clk := testutil.NewMockClock()
	if err := st.WriteSession(ctx, ir.Session{
		ID:            session,
		RuleSetHash:   hash,
		EngineVersion: ir.EngineVersion,
		StartedAt:     clk.Now().UnixMilli(),
	}); err != nil {
		return nil, err
	}

	fx := newFixtureSet()
	for i, f := range scenario.Fixtures {
		if err := fx.install(f); err != nil {
			return nil, fmt.Errorf("fixtures[%d]: %w", i, err)
		}
	}

	defs, err := actions.BuildAll(&rs, rc.log)
	if err != nil {
		return nil, fmt.Errorf("failed to build rules: %w", err)
	}

	mem := engine.NewMemoryRecorder()
	journal := store.NewRecorder(st, session, rc.log)
	eng := engine.New(fx.ns,
		engine.WithConfig(cfg),
		engine.WithClock(clk),
		engine.WithLogger(rc.log),
		engine.WithRecorder(engine.MultiRecorder{mem, journal}),
		engine.WithSession(session),
		engine.WithIDGenerator(engine.NewCounterGenerator("rule-")),
	)

	h := &Harness{
		eng:   eng,
		fx:    fx,
		clk:   clk,
		log:   rc.log.With("scenario", scenario.Name),
		saved: make(map[string]any),
	}

	result := NewResult(session)
	if n := eng.RegisterBatch(defs); n != len(defs) {
		result.AddError(fmt.Sprintf("registered %d of %d rules", n, len(defs)))
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Type, err))
		}
	}

	if err := journal.Err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	trace, err := st.ReadEvents(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	if !reflect.DeepEqual(stripSession(trace), stripSession(mem.Events())) {
		result.AddError(fmt.Sprintf("journal mismatch: store has %d events, engine emitted %d", len(trace), len(mem.Events())))
	}
	result.Trace = trace
	result.Status = eng.Status()

	actx := &AssertionContext{Engine: eng, Builtins: fx.builtins}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.log.Debug("scenario finished", "pass", result.Pass, "events", len(trace))
	return result, nil
}

// outcome is what a step produced, for checking against its Expect.
type outcome struct {
	value    any
	err      error
	ok       *bool
	count    *int
	blocked  *bool
	instance *namespace.Object
}

// executeStep runs one step. Returned errors are harness failures or
// unmet expectations.
func (h *Harness) executeStep(step Step) error {
	out, err := h.perform(step)
	if err != nil {
		return err
	}
	if step.Save != "" {
		if out.instance != nil {
			h.saved[step.Save] = out.instance
		} else {
			h.saved[step.Save] = out.value
		}
	}

	h.log.Debug("step completed", "type", step.Type, "path", step.Path)

	if step.Expect == nil {
		return nil
	}
	return h.checkExpect(step.Expect, out)
}

func (h *Harness) perform(step Step) (outcome, error) {
	args := normalizeArgs(step.Args)

	switch step.Type {
	case StepCall:
		b, fn, err := h.function(step.Path)
		if err != nil {
			return outcome{}, err
		}
		v, callErr := fn.Apply(b.Owner, args)
		return outcome{value: v, err: callErr}, nil

	case StepNew:
		_, fn, err := h.function(step.Path)
		if err != nil {
			return outcome{}, err
		}
		inst, newErr := fn.Construct(args...)
		return outcome{instance: inst, err: newErr}, nil

	case StepNewOriginal:
		info, found := h.eng.Rule(step.Path)
		if !found || info.Original == nil {
			return outcome{}, fmt.Errorf("no captured original for %s", step.Path)
		}
		inst, newErr := info.Original.Construct(args...)
		return outcome{instance: inst, err: newErr}, nil

	case StepInvoke:
		inst, ok := h.saved[step.Target].(*namespace.Object)
		if !ok {
			return outcome{}, fmt.Errorf("no saved instance %q", step.Target)
		}
		v, callErr := inst.Invoke(step.Method, args...)
		return outcome{value: v, err: callErr}, nil

	case StepRedefine:
		return h.redefine(step)

	case StepAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return outcome{}, err
		}
		h.clk.Add(d)
		// The mock fires timers on another goroutine; checking here
		// expires a due guard before the next step runs.
		h.eng.Guard().Active()
		return outcome{}, nil

	case StepActivate:
		return outcome{ok: boolPtr(h.eng.SetActive(step.Path, true))}, nil
	case StepDeactivate:
		return outcome{ok: boolPtr(h.eng.SetActive(step.Path, false))}, nil
	case StepApply:
		return outcome{ok: boolPtr(h.eng.ApplyOne(step.Path))}, nil
	case StepApplyAll:
		n := h.eng.ApplyAll()
		return outcome{count: &n}, nil
	case StepReady:
		h.eng.Ready()
		return outcome{}, nil
	case StepUnregister:
		return outcome{ok: boolPtr(h.eng.Unregister(step.Path))}, nil

	case StepRegister:
		def, err := actions.Build(normalizeRule(*step.Rule), h.log)
		if err != nil {
			return outcome{}, err
		}
		return outcome{ok: boolPtr(h.eng.Register(def.Path, def.Hook))}, nil

	case StepResolve, StepReject:
		p, found := h.fx.pending[step.Path]
		if !found {
			return outcome{}, fmt.Errorf("no deferred fixture at %s", step.Path)
		}
		if step.Index < 0 || step.Index >= p.Len() {
			return outcome{}, fmt.Errorf("no pending call %d at %s (have %d)", step.Index, step.Path, p.Len())
		}
		if step.Type == StepResolve {
			return outcome{ok: boolPtr(p.Resolve(step.Index, normalize(step.Value)))}, nil
		}
		return outcome{ok: boolPtr(p.Reject(step.Index, errors.New(fmt.Sprint(step.Value))))}, nil

	case StepAwait:
		t, ok := future.As(h.saved[step.Target])
		if !ok {
			return outcome{}, fmt.Errorf("no saved future %q", step.Target)
		}
		var (
			settled bool
			out     outcome
		)
		t.Then(func(v any, err error) {
			settled = true
			out = outcome{value: v, err: err}
		})
		if !settled {
			return outcome{}, fmt.Errorf("future %q is still pending", step.Target)
		}
		return out, nil

	case StepClose:
		h.eng.Close()
		return outcome{}, nil
	}
	return outcome{}, fmt.Errorf("unknown step type %q", step.Type)
}

// redefine attempts to replace the binding at step.Path through the
// namespace's definition primitive, the way third-party code would.
func (h *Harness) redefine(step Step) (outcome, error) {
	owner, name, err := h.fx.slot(step.Path)
	if err != nil {
		return outcome{}, err
	}
	f := *step.Fixture
	f.Path = step.Path
	value, err := h.fx.build(f)
	if err != nil {
		return outcome{}, err
	}

	_, defErr := h.fx.ns.DefineProperty(owner, name, value, namespace.DefaultDescriptor)
	cur, _ := owner.Own(name)
	blocked := cur != value
	return outcome{err: defErr, blocked: &blocked}, nil
}

func (h *Harness) function(path string) (engine.Binding, *namespace.Function, error) {
	b, found := engine.Resolve(h.fx.ns.Global(), path)
	if !found {
		return b, nil, fmt.Errorf("path %s did not resolve", path)
	}
	fn, ok := b.Value.(*namespace.Function)
	if !ok {
		return b, nil, fmt.Errorf("%s is %T, not a function", path, b.Value)
	}
	return b, fn, nil
}

func (h *Harness) checkExpect(exp *Expect, out outcome) error {
	var problems []string

	switch {
	case exp.Error != "":
		if out.err == nil {
			problems = append(problems, fmt.Sprintf("expected error containing %q, got success", exp.Error))
		} else if !strings.Contains(out.err.Error(), exp.Error) {
			problems = append(problems, fmt.Sprintf("expected error containing %q, got %q", exp.Error, out.err.Error()))
		}
	case out.err != nil:
		problems = append(problems, fmt.Sprintf("unexpected error: %v", out.err))
	}

	if exp.Value != nil {
		want := normalize(exp.Value)
		if !reflect.DeepEqual(want, normalize(out.value)) {
			problems = append(problems, fmt.Sprintf("expected value %s, got %s", engine.Render(want), engine.Render(out.value)))
		}
	}
	if exp.Undefined && out.value != nil {
		problems = append(problems, fmt.Sprintf("expected undefined, got %s", engine.Render(out.value)))
	}
	if exp.Deferred {
		if _, ok := future.As(out.value); !ok {
			problems = append(problems, fmt.Sprintf("expected a future, got %T", out.value))
		}
	}
	if exp.Blocked != nil {
		switch {
		case out.blocked == nil:
			problems = append(problems, "blocked is only reported by redefine")
		case *out.blocked != *exp.Blocked:
			problems = append(problems, fmt.Sprintf("expected blocked=%t, got %t", *exp.Blocked, *out.blocked))
		}
	}
	if exp.OK != nil {
		switch {
		case out.ok == nil:
			problems = append(problems, "ok is not reported by this step")
		case *out.ok != *exp.OK:
			problems = append(problems, fmt.Sprintf("expected ok=%t, got %t", *exp.OK, *out.ok))
		}
	}
	if exp.Count != nil {
		switch {
		case out.count == nil:
			problems = append(problems, "count is only reported by apply_all")
		case *out.count != *exp.Count:
			problems = append(problems, fmt.Sprintf("expected count=%d, got %d", *exp.Count, *out.count))
		}
	}
	if exp.InstanceOf != "" {
		_, fn, err := h.function(exp.InstanceOf)
		switch {
		case err != nil:
			problems = append(problems, err.Error())
		case out.instance == nil:
			problems = append(problems, "instance_of needs a constructed instance")
		case !namespace.InstanceOf(out.instance, fn):
			problems = append(problems, fmt.Sprintf("instance is not an instance of %s", exp.InstanceOf))
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func stripSession(events []ir.Event) []ir.Event {
	out := make([]ir.Event, len(events))
	for i, ev := range events {
		ev.Session = ""
		out[i] = ev
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
