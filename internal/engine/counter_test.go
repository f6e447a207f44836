package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/veil/internal/namespace"
)

func TestRedefinitionCounter_BlocksWithinAllowance(t *testing.T) {
	c := NewRedefinitionCounter(2)
	g := namespace.NewObject()

	err := c.Check(g, "target")
	var blocked *RedefinitionBlockedError
	assert.True(t, errors.As(err, &blocked))
	assert.Equal(t, 1, blocked.Attempt)

	assert.Error(t, c.Check(g, "target"))
	assert.NoError(t, c.Check(g, "target"), "third attempt passes")
	assert.NoError(t, c.Check(g, "target"), "later attempts keep passing")

	assert.Equal(t, 4, c.Count(g, "target"))
}

func TestRedefinitionCounter_PerProperty(t *testing.T) {
	c := NewRedefinitionCounter(1)
	a := namespace.NewObject()
	b := namespace.NewObject()

	assert.Error(t, c.Check(a, "x"))
	assert.Error(t, c.Check(a, "y"), "different name has its own counter")
	assert.Error(t, c.Check(b, "x"), "different owner has its own counter")
	assert.NoError(t, c.Check(a, "x"))
}

func TestRedefinitionCounter_ZeroAllowance(t *testing.T) {
	c := NewRedefinitionCounter(0)
	assert.NoError(t, c.Check(namespace.NewObject(), "x"))
}

func TestRedefinitionCounter_Reset(t *testing.T) {
	c := NewRedefinitionCounter(1)
	g := namespace.NewObject()

	assert.Error(t, c.Check(g, "x"))
	assert.NoError(t, c.Check(g, "x"))

	c.Reset()
	assert.Equal(t, 0, c.Count(g, "x"))
	assert.Error(t, c.Check(g, "x"), "counter starts over after reset")
}

func TestRedefinitionBlockedError_Message(t *testing.T) {
	err := &RedefinitionBlockedError{Name: "fetch", Attempt: 1, Allowance: 2}
	assert.Equal(t, `redefinition of "fetch" blocked (attempt 1 of 2 refused)`, err.Error())
}
