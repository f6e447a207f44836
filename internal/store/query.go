package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/veil/internal/ir"
)

// EventQuery selects journal events of one session.
//
// Semantics:
//
//	SELECT session_id, seq, kind, path, detail FROM events
//	WHERE session_id = <session> AND <filter>
//	ORDER BY seq ASC
//
// Every compiled query is ordered by seq, and every value is a bound
// parameter.
type EventQuery struct {
	Session string
	Filter  Predicate // nil = every event of the session
	Limit   int       // 0 = unlimited
}

// Predicate is a filter over journal events.
//
// Sealed: only types in this package implement it.
//
// Predicate types:
//   - KindIn: kind is one of a set
//   - PathEquals: path equals a value
//   - PathPrefix: path is a value or lies beneath it ("Math" matches
//     "Math.random" but not "MathX"; "Thing" matches the instance
//     method label "Thing#compute")
//   - SeqRange: seq within inclusive bounds
//   - DetailContains: detail contains a substring
//   - And: all predicates hold
type Predicate interface {
	predicateNode()
}

// KindIn matches events whose kind is one of Kinds. An empty set matches
// nothing.
type KindIn struct {
	Kinds []ir.EventKind
}

func (KindIn) predicateNode() {}

// PathEquals matches events at exactly Path.
type PathEquals struct {
	Path string
}

func (PathEquals) predicateNode() {}

// PathPrefix matches events at Prefix or at any path beneath it, including
// instance method labels of the form Prefix#method.
type PathPrefix struct {
	Prefix string
}

func (PathPrefix) predicateNode() {}

// SeqRange matches events with From <= seq <= To. A zero bound is open.
type SeqRange struct {
	From int64
	To   int64
}

func (SeqRange) predicateNode() {}

// DetailContains matches events whose detail contains Text.
type DetailContains struct {
	Text string
}

func (DetailContains) predicateNode() {}

// And matches events that satisfy every predicate. An empty And matches
// everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// CompileEventQuery converts q to parameterized SQL.
// Returns (sql, params, error).
func CompileEventQuery(q EventQuery) (string, []any, error) {
	if q.Session == "" {
		return "", nil, fmt.Errorf("event query: session is required")
	}

	where := "session_id = ?"
	params := []any{q.Session}
	if q.Filter != nil {
		filterSQL, filterParams, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	sql := "SELECT session_id, seq, kind, path, detail FROM events WHERE " + where + " ORDER BY seq ASC"
	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}
	return sql, params, nil
}

func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case KindIn:
		return compileKindIn(pred)
	case *KindIn:
		return compileKindIn(*pred)
	case PathEquals:
		return "path = ?", []any{pred.Path}, nil
	case *PathEquals:
		return "path = ?", []any{pred.Path}, nil
	case PathPrefix:
		return compilePathPrefix(pred)
	case *PathPrefix:
		return compilePathPrefix(*pred)
	case SeqRange:
		return compileSeqRange(pred)
	case *SeqRange:
		return compileSeqRange(*pred)
	case DetailContains:
		return "instr(detail, ?) > 0", []any{pred.Text}, nil
	case *DetailContains:
		return "instr(detail, ?) > 0", []any{pred.Text}, nil
	case And:
		return compileAnd(pred)
	case *And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileKindIn(k KindIn) (string, []any, error) {
	if len(k.Kinds) == 0 {
		return "1 = 0", nil, nil
	}
	params := make([]any, len(k.Kinds))
	for i, kind := range k.Kinds {
		params[i] = string(kind)
	}
	return "kind IN (?" + strings.Repeat(", ?", len(k.Kinds)-1) + ")", params, nil
}

// compilePathPrefix avoids LIKE so path characters need no escaping. SQLite
// measures the prefix itself since substr counts characters, not bytes.
func compilePathPrefix(p PathPrefix) (string, []any, error) {
	if p.Prefix == "" {
		return "", nil, fmt.Errorf("path prefix must not be empty")
	}
	return "(path = ? OR substr(path, 1, length(?) + 1) IN (?, ?))",
		[]any{p.Prefix, p.Prefix, p.Prefix + ".", p.Prefix + "#"}, nil
}

func compileSeqRange(r SeqRange) (string, []any, error) {
	if r.From < 0 || r.To < 0 {
		return "", nil, fmt.Errorf("seq bounds must not be negative")
	}
	if r.To != 0 && r.From > r.To {
		return "", nil, fmt.Errorf("seq range %d..%d is empty", r.From, r.To)
	}
	switch {
	case r.From > 0 && r.To > 0:
		return "seq BETWEEN ? AND ?", []any{r.From, r.To}, nil
	case r.From > 0:
		return "seq >= ?", []any{r.From}, nil
	case r.To > 0:
		return "seq <= ?", []any{r.To}, nil
	default:
		return "1 = 1", nil, nil
	}
}

func compileAnd(and And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, ps, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// QueryEvents runs q and returns the matching events in seq order.
func (s *Store) QueryEvents(ctx context.Context, q EventQuery) ([]ir.Event, error) {
	sql, params, err := CompileEventQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}
