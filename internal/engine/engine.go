package engine

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/logger"
	"github.com/roach88/veil/internal/namespace"
)

// Marker is the global property that signals an installed engine.
const Marker = "__veil__"

// Engine is the interception engine for one namespace.
//
// The registry is the only mutable engine state. It is guarded by mu, which
// is never held while code the engine does not own runs: observers,
// originals, and definition primitives all execute outside the lock.
// Re-entrant operations on a path that is mid-apply are refused by the
// ReentryGuard instead of deadlocking.
//
// Thread-safety model:
//   - All exported methods are safe from any goroutine
//   - Wrappers installed by the engine are safe to call concurrently
//   - Events are stamped by a monotonic Sequence; relative order of events
//     from concurrent callers follows the order they reach the sequence
type Engine struct {
	ns       *namespace.Namespace
	cfg      Config
	log      logger.Logger
	clk      clock.Clock
	seq      *Sequence
	ids      IDGenerator
	recorder Recorder
	session  string

	// define is the definition primitive captured at construction. Stealth
	// installs go through it, so the guard never sees the engine's own
	// definitions.
	define namespace.Definer

	kinds   kindChain
	reentry *ReentryGuard
	guard   *Guard

	mu     sync.Mutex
	rules  map[string]*Rule
	closed bool

	ready sync.Once
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithStealthMode toggles stealth installs and the anti-tamper guard.
func WithStealthMode(on bool) EngineOption {
	return func(e *Engine) {
		e.cfg.StealthMode = on
	}
}

// WithDebugMode toggles diagnostic logging.
func WithDebugMode(on bool) EngineOption {
	return func(e *Engine) {
		e.cfg.DebugMode = on
	}
}

// WithAutoApply toggles applying rules on registration.
func WithAutoApply(on bool) EngineOption {
	return func(e *Engine) {
		e.cfg.AutoApply = on
	}
}

// WithAutoRestore toggles restoring every applied rule on Close.
func WithAutoRestore(on bool) EngineOption {
	return func(e *Engine) {
		e.cfg.AutoRestore = on
	}
}

// WithGuardWindow sets how long the anti-tamper guard stays active.
//
// Default: 10s (DefaultGuardWindow)
// Use WithGuardWindow(0) to disable the guard while keeping stealth installs.
func WithGuardWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.cfg.GuardWindow = d
	}
}

// WithClock injects the clock used for timestamps and the guard window.
func WithClock(clk clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clk = clk
	}
}

// WithLogger sets the logger. Debug output is only produced in debug mode.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithIDGenerator sets the rule ID generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithRecorder sets the event journal.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithSession stamps every event with a session ID.
func WithSession(id string) EngineOption {
	return func(e *Engine) {
		e.session = id
	}
}

// WithSequence sets the logical clock used to stamp events.
func WithSequence(s *Sequence) EngineOption {
	return func(e *Engine) {
		e.seq = s
	}
}

// New creates an Engine over ns.
//
// The namespace's current definition primitive is captured here. Options are
// applied over DefaultConfig.
func New(ns *namespace.Namespace, opts ...EngineOption) *Engine {
	e := &Engine{
		ns:       ns,
		cfg:      DefaultConfig(),
		log:      logger.NewNop(),
		clk:      clock.New(),
		seq:      NewSequence(),
		ids:      UUIDv7Generator{},
		recorder: nopRecorder{},
		define:   ns.Definer(),
		reentry:  NewReentryGuard(),
		rules:    make(map[string]*Rule),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.kinds = newKindChain(newAllowList(e.cfg.ConstructibleNames), structuralProbe{})
	e.guard = newGuard(ns, e.clk, e.cfg.GuardWindow, e.cfg.GuardAllowance, e.trackedPath, e.emit, e.debugLogger())
	return e
}

var installMu sync.Mutex

// Install creates an engine over ns unless one is already installed there.
//
// The installed engine is published under Marker on the global object as a
// hidden, read-only property. A second Install returns the existing engine
// and false.
func Install(ns *namespace.Namespace, opts ...EngineOption) (*Engine, bool) {
	installMu.Lock()
	defer installMu.Unlock()

	if v, ok := ns.Global().Own(Marker); ok {
		if existing, isEngine := v.(*Engine); isEngine {
			return existing, false
		}
	}

	e := New(ns, opts...)
	if err := ns.Global().Define(Marker, e, namespace.Descriptor{}); err != nil {
		e.log.Err(err, "publish install marker")
	}
	e.debug("engine installed", "stealth", e.cfg.StealthMode, "auto_apply", e.cfg.AutoApply)
	return e, true
}

// Installed returns the engine published on ns, if any.
func Installed(ns *namespace.Namespace) (*Engine, bool) {
	v, ok := ns.Global().Own(Marker)
	if !ok {
		return nil, false
	}
	e, ok := v.(*Engine)
	return e, ok
}

// Ready is the readiness hook. The first call applies every active rule;
// later calls do nothing.
func (e *Engine) Ready() {
	e.ready.Do(func() {
		e.debug("ready")
		e.ApplyAll()
	})
}

// Close removes the anti-tamper guard and, with AutoRestore, restores every
// applied rule. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.guard.Deactivate()
	if e.cfg.AutoRestore {
		e.RestoreAll()
	}
}

// Namespace returns the namespace the engine intercepts in.
func (e *Engine) Namespace() *namespace.Namespace {
	return e.ns
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Guard returns the anti-tamper guard.
func (e *Engine) Guard() *Guard {
	return e.guard
}

// Sequence returns the logical clock stamping events.
func (e *Engine) Sequence() *Sequence {
	return e.seq
}

// Session returns the session ID stamped on events.
func (e *Engine) Session() string {
	return e.session
}

func (e *Engine) emit(kind ir.EventKind, path, detail string) {
	e.recorder.Record(ir.Event{
		Seq:     e.seq.Next(),
		Session: e.session,
		Kind:    kind,
		Path:    path,
		Detail:  detail,
	})
}

func (e *Engine) debug(msg string, kv ...any) {
	if e.cfg.DebugMode {
		e.log.Debug(msg, kv...)
	}
}

func (e *Engine) debugLogger() logger.Logger {
	if e.cfg.DebugMode {
		return e.log
	}
	return logger.NewNop()
}
