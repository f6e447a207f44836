// Package ir provides the data types shared across veil: declarative rule
// sets, journal events, and their canonical serialization.
//
// This package contains type definitions and pure helpers only. Other
// internal packages import ir; ir imports nothing internal.
//
// Conventions:
//   - All JSON and YAML tags use snake_case
//   - Events are ordered by logical seq, never by wall-clock time
//   - Canonical JSON is the only serialization used for hashing and golden
//     traces
package ir
