package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/logger"
	"github.com/roach88/veil/internal/namespace"
)

// trackFunc reports the rule path protecting (owner, name), if any.
type trackFunc func(owner *namespace.Object, name string) (string, bool)

// emitFunc journals an event.
type emitFunc func(kind ir.EventKind, path, detail string)

// Guard is the anti-tamper layer.
//
// While active it replaces the namespace's definition primitive. Definitions
// that target a tracked property are counted; the first attempts within the
// allowance become silent no-ops and later ones pass through. The guard
// removes itself when its window elapses on the injected clock, restoring
// the previous primitive.
//
// Expiry is checked both by a timer and lazily on every guarded call, so a
// mock clock advanced by tests takes effect without waiting on the timer
// goroutine.
type Guard struct {
	ns      *namespace.Namespace
	clk     clock.Clock
	window  time.Duration
	counter *RedefinitionCounter
	tracked trackFunc
	emit    emitFunc
	log     logger.Logger

	mu       sync.Mutex
	active   bool
	prev     namespace.Definer
	deadline time.Time
	timer    *clock.Timer
	gen      int
}

func newGuard(ns *namespace.Namespace, clk clock.Clock, window time.Duration, allowance int,
	tracked trackFunc, emit emitFunc, log logger.Logger) *Guard {
	return &Guard{
		ns:      ns,
		clk:     clk,
		window:  window,
		counter: NewRedefinitionCounter(allowance),
		tracked: tracked,
		emit:    emit,
		log:     log,
	}
}

// Activate installs the guard for one window. It returns false if the guard
// is already active or the window is zero.
func (g *Guard) Activate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireIfDueLocked()
	if g.active || g.window <= 0 {
		return false
	}

	g.gen++
	gen := g.gen
	g.prev = g.ns.SetDefiner(g.define)
	g.active = true
	g.deadline = g.clk.Now().Add(g.window)
	g.timer = g.clk.AfterFunc(g.window, func() { g.expire(gen) })

	g.emit(ir.EventGuardOn, "", fmt.Sprintf("window=%s allowance=%d", g.window, g.counter.Allowance()))
	g.log.Debug("anti-tamper guard active", "window", g.window.String())
	return true
}

// Deactivate removes the guard early. It returns false if it was not active.
func (g *Guard) Deactivate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return false
	}
	g.teardownLocked("closed")
	return true
}

// Active reports whether the guard is installed.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireIfDueLocked()
	return g.active
}

// Attempts returns how many redefinitions of (owner, name) were seen in the
// current window.
func (g *Guard) Attempts(owner *namespace.Object, name string) int {
	return g.counter.Count(owner, name)
}

func (g *Guard) expire(gen int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active && g.gen == gen {
		g.teardownLocked("window elapsed")
	}
}

func (g *Guard) expireIfDueLocked() {
	if g.active && !g.clk.Now().Before(g.deadline) {
		g.teardownLocked("window elapsed")
	}
}

// teardownLocked restores the previous primitive unconditionally.
func (g *Guard) teardownLocked(reason string) {
	g.ns.SetDefiner(g.prev)
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.active = false
	g.counter.Reset()

	g.emit(ir.EventGuardOff, "", reason)
	g.log.Debug("anti-tamper guard removed", "reason", reason)
}

// define is installed as the namespace definition primitive while active.
func (g *Guard) define(target *namespace.Object, name string, value any, desc namespace.Descriptor) (*namespace.Object, error) {
	g.mu.Lock()
	g.expireIfDueLocked()
	active := g.active
	prev := g.prev
	g.mu.Unlock()

	if !active {
		// A caller captured this primitive and kept using it after the
		// window closed.
		if prev == nil {
			prev = namespace.RawDefine
		}
		return prev(target, name, value, desc)
	}

	if path, ok := g.tracked(target, name); ok {
		if err := g.counter.Check(target, name); err != nil {
			g.emit(ir.EventRedefineBlocked, path, err.Error())
			g.log.Debug("redefinition blocked", "path", path, "property", name)
			return target, nil
		}
		g.emit(ir.EventRedefineAllowed, path, fmt.Sprintf("attempt %d", g.counter.Count(target, name)))
		g.log.Debug("redefinition allowed", "path", path, "property", name)
	}
	return prev(target, name, value, desc)
}
