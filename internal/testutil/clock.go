package testutil

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Epoch is the wall time every mock clock starts at.
//
// Starting all tests at the same instant keeps timestamps and guard deadlines
// identical across runs.
var Epoch = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewMockClock creates a mock clock set to Epoch.
//
// Timers registered on the mock fire only when the test advances it with
// Add or Set.
func NewMockClock() *clock.Mock {
	m := clock.NewMock()
	m.Set(Epoch)
	return m
}
