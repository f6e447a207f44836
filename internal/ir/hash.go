package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainRuleSet = "veil/ruleset/v1"
	DomainTrace   = "veil/trace/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RuleSetHash computes the identity of a rule set. Rule order does not
// matter because compiled rule sets are sorted by path; callers building
// rule sets by hand should sort them first.
func RuleSetHash(rs RuleSet) (string, error) {
	generic, err := toGeneric(rs)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: %w", err)
	}
	canonical, err := MarshalCanonical(generic)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}

// TraceHash computes the identity of an ordered event trace. Session IDs are
// excluded so identical runs hash identically.
func TraceHash(events []Event) (string, error) {
	list := make([]any, len(events))
	for i, ev := range events {
		list[i] = ev.Canonical()
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("TraceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// toGeneric round-trips v through encoding/json so struct tags decide the
// key names. Numbers are kept as json.Number.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
