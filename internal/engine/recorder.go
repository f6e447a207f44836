package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/veil/internal/future"
	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/namespace"
)

// Recorder receives journal events. Implementations must not call back into
// the engine.
type Recorder interface {
	Record(ev ir.Event)
}

// nopRecorder discards events.
type nopRecorder struct{}

func (nopRecorder) Record(ir.Event) {}

// MemoryRecorder keeps events in memory. Safe for concurrent use.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []ir.Event
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends ev.
func (m *MemoryRecorder) Record(ev ir.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of the recorded events in seq order.
func (m *MemoryRecorder) Events() []ir.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ir.Event, len(m.events))
	copy(out, m.events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Reset drops all recorded events.
func (m *MemoryRecorder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// MultiRecorder fans events out to several recorders.
type MultiRecorder []Recorder

// Record forwards ev to every recorder.
func (m MultiRecorder) Record(ev ir.Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ev)
		}
	}
}

// Render produces the deterministic text form of a runtime value used in
// event details.
func Render(v any) string {
	switch val := v.(type) {
	case nil:
		return "undefined"
	case string:
		return fmt.Sprintf("%q", val)
	case float64:
		if s, err := ir.FormatNumber(val); err == nil {
			return s
		}
		return fmt.Sprint(val)
	case float32:
		return Render(float64(val))
	case *namespace.Function:
		return val.String()
	case *namespace.Object:
		return "[object]"
	case future.Thenable:
		return "[deferred]"
	case error:
		return "error(" + val.Error() + ")"
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Render(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(val)
	}
}
