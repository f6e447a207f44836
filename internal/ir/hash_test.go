package ir

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRuleSet() RuleSet {
	stealth := true
	return RuleSet{
		Settings: Settings{StealthMode: &stealth},
		Rules: []RuleSpec{
			{
				Path: "Math.random",
				Kind: KindFunction,
				After: []ActionSpec{
					{Action: "clamp", Args: map[string]any{"max": 0}},
				},
			},
			{
				Path:   "Thing",
				Kind:   KindConstructible,
				Method: "compute",
				After: []ActionSpec{
					{Action: "scale", Args: map[string]any{"factor": 2}},
				},
			},
		},
	}
}

func TestRuleSetHashDeterminism(t *testing.T) {
	h1, err := RuleSetHash(sampleRuleSet())
	require.NoError(t, err)
	h2, err := RuleSetHash(sampleRuleSet())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	_, err = hex.DecodeString(h1)
	assert.NoError(t, err)
}

func TestRuleSetHashChangesWithContent(t *testing.T) {
	base, err := RuleSetHash(sampleRuleSet())
	require.NoError(t, err)

	changed := sampleRuleSet()
	changed.Rules[0].After[0].Args["max"] = 1
	other, err := RuleSetHash(changed)
	require.NoError(t, err)

	assert.NotEqual(t, base, other)
}

func TestRuleSetHashIgnoresArgKeyOrder(t *testing.T) {
	a := RuleSet{Rules: []RuleSpec{{Path: "f", After: []ActionSpec{{Action: "clamp", Args: map[string]any{"min": 0, "max": 1}}}}}}
	b := RuleSet{Rules: []RuleSpec{{Path: "f", After: []ActionSpec{{Action: "clamp", Args: map[string]any{"max": 1, "min": 0}}}}}}

	ha, err := RuleSetHash(a)
	require.NoError(t, err)
	hb, err := RuleSetHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestTraceHashIgnoresSession(t *testing.T) {
	events := []Event{
		{Seq: 1, Session: "s1", Kind: EventCall, Path: "Math.random"},
		{Seq: 2, Session: "s1", Kind: EventReturn, Path: "Math.random", Detail: "0"},
	}
	other := []Event{
		{Seq: 1, Session: "s2", Kind: EventCall, Path: "Math.random"},
		{Seq: 2, Session: "s2", Kind: EventReturn, Path: "Math.random", Detail: "0"},
	}

	h1, err := TraceHash(events)
	require.NoError(t, err)
	h2, err := TraceHash(other)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	other[1].Detail = "1"
	h3, err := TraceHash(other)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`[]`)
	assert.NotEqual(t, hashWithDomain(DomainRuleSet, data), hashWithDomain(DomainTrace, data))
}

func TestEventCanonicalOmitsEmptyDetail(t *testing.T) {
	m := Event{Seq: 3, Kind: EventApplied, Path: "fetch"}.Canonical()
	_, ok := m["detail"]
	assert.False(t, ok)

	out, err := MarshalCanonical(m)
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"applied","path":"fetch","seq":3}`, string(out))
}
