package store

import (
	"context"
	"sync"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/logger"
)

// Recorder persists engine journal events into a session. It satisfies the
// engine's Recorder interface.
//
// Record cannot return an error, so write failures are logged and the first
// one is kept for Err.
type Recorder struct {
	store   *Store
	session string
	log     logger.Logger

	mu  sync.Mutex
	err error
}

// NewRecorder returns a Recorder writing into session. The session row must
// already exist (see WriteSession).
func NewRecorder(s *Store, session string, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Recorder{store: s, session: session, log: log}
}

// Record writes ev. Events without a session are stamped with the
// recorder's session.
func (r *Recorder) Record(ev ir.Event) {
	if ev.Session == "" {
		ev.Session = r.session
	}
	if err := r.store.WriteEvent(context.Background(), ev); err != nil {
		r.log.Err(err, "journal write failed", "session", ev.Session, "seq", ev.Seq, "kind", string(ev.Kind))
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Session returns the session events are written to.
func (r *Recorder) Session() string {
	return r.session
}
