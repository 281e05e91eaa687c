// Package store keeps a SQLite log of compilations for audit and replay.
//
// Each row holds the input plan, the result plan, the configuration and
// the diagnostics of one compilation. Plans are stored as zstd-compressed
// canonical JSON next to their content hashes, so a replay can recompile
// the input and compare hashes without decoding the old output.
//
// Reads are ordered by seq ASC, id ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection, since SQLite has one writer
package store
