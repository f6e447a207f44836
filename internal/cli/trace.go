package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string   // optional - lists sessions when empty
	Kinds    []string // optional - filter to these event kinds
	Path     string   // optional - exact path
	Prefix   string   // optional - path and everything beneath it
	Contains string   // optional - detail substring
	FromSeq  int64
	ToSeq    int64
	Limit    int
}

// TraceResult holds the complete trace output for one session.
type TraceResult struct {
	Session       string     `json:"session"`
	RuleSetHash   string     `json:"rule_set_hash"`
	EngineVersion string     `json:"engine_version"`
	Events        []ir.Event `json:"events"`
	Stats         TraceStats `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
	Paths       []string       `json:"paths"`
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	ir.Session
	Events int `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read a journaled session",
		Long: `Read the event journal written by "veil run --db".

Without --session, lists every session in the database. With --session,
prints that session's events in sequence order, optionally filtered by
kind, path, detail text or seq range, followed by per-kind counts.

Examples:
  veil trace --db ./veil.db
  veil trace --db ./veil.db --session s1
  veil trace --db ./veil.db --session s1 --kind call --kind return
  veil trace --db ./veil.db --session s1 --prefix Math --from-seq 10
  veil trace --db ./veil.db --session s1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "filter to event kind (repeatable)")
	cmd.Flags().StringVar(&opts.Path, "path", "", "filter to an exact path")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "filter to a path and the paths beneath it")
	cmd.Flags().StringVar(&opts.Contains, "contains", "", "filter to events whose detail contains this text")
	cmd.Flags().Int64Var(&opts.FromSeq, "from-seq", 0, "first seq to include")
	cmd.Flags().Int64Var(&opts.ToSeq, "to-seq", 0, "last seq to include")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, st, formatter)
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("session not found: %s", opts.Session), nil)
	}
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "failed to read session", err)
	}

	events, err := st.QueryEvents(ctx, opts.query())
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "failed to read events", err)
	}

	result := TraceResult{
		Session:       sess.ID,
		RuleSetHash:   sess.RuleSetHash,
		EngineVersion: sess.EngineVersion,
		Events:        events,
		Stats:         buildStats(events),
	}

	if formatter.Format == "json" {
		return formatter.Response(CLIResponse{Status: "ok", Data: result})
	}
	return outputTraceText(formatter, result)
}

// query builds the journal query selected by the filter flags.
func (o *TraceOptions) query() store.EventQuery {
	var preds []store.Predicate
	if len(o.Kinds) > 0 {
		kinds := make([]ir.EventKind, len(o.Kinds))
		for i, k := range o.Kinds {
			kinds[i] = ir.EventKind(k)
		}
		preds = append(preds, store.KindIn{Kinds: kinds})
	}
	if o.Path != "" {
		preds = append(preds, store.PathEquals{Path: o.Path})
	}
	if o.Prefix != "" {
		preds = append(preds, store.PathPrefix{Prefix: o.Prefix})
	}
	if o.Contains != "" {
		preds = append(preds, store.DetailContains{Text: o.Contains})
	}
	if o.FromSeq != 0 || o.ToSeq != 0 {
		preds = append(preds, store.SeqRange{From: o.FromSeq, To: o.ToSeq})
	}

	q := store.EventQuery{Session: o.Session, Limit: o.Limit}
	if len(preds) > 0 {
		q.Filter = store.And{Predicates: preds}
	}
	return q
}

func listSessions(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "failed to list sessions", err)
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		n, err := st.CountEvents(ctx, s.ID)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, "failed to count events", err)
		}
		summaries = append(summaries, SessionSummary{Session: s, Events: n})
	}

	if formatter.Format == "json" {
		return formatter.Response(CLIResponse{Status: "ok", Data: summaries})
	}

	w := formatter.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	fmt.Fprintf(w, "Sessions (%d):\n", len(summaries))
	for _, s := range summaries {
		fmt.Fprintf(w, "  %s  %d events  engine %s\n", s.ID, s.Events, s.EngineVersion)
	}
	return nil
}

// buildStats counts events per kind and collects the distinct non-empty
// paths, both in sorted order.
func buildStats(events []ir.Event) TraceStats {
	stats := TraceStats{
		TotalEvents: len(events),
		ByKind:      make(map[string]int),
		Paths:       []string{},
	}
	seen := make(map[string]bool)
	for _, ev := range events {
		stats.ByKind[string(ev.Kind)]++
		if ev.Path != "" && !seen[ev.Path] {
			seen[ev.Path] = true
			stats.Paths = append(stats.Paths, ev.Path)
		}
	}
	sort.Strings(stats.Paths)
	return stats
}

// formatEvent renders one event as a timeline line.
func formatEvent(ev ir.Event) string {
	parts := []string{fmt.Sprintf("[%d]", ev.Seq), string(ev.Kind)}
	if ev.Path != "" {
		parts = append(parts, ev.Path)
	}
	if ev.Detail != "" {
		parts = append(parts, ev.Detail)
	}
	return strings.Join(parts, " ")
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Session: %s\n", result.Session)
	formatter.VerboseLog("Rule set: %s", result.RuleSetHash)
	fmt.Fprintln(w)

	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}

	fmt.Fprintln(w, "Timeline:")
	for _, ev := range result.Events {
		fmt.Fprintf(w, "  %s\n", formatEvent(ev))
	}

	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d events\n", result.Stats.TotalEvents)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", k, result.Stats.ByKind[k])
	}
	return nil
}
