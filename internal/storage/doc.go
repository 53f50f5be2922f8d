package storage

// Package storage keeps run history across invocations so watch mode and
// operators can see regressions over time.
//
// It currently supports:
//   - File backend (append-only JSON Lines), the default
//   - SQLite backend behind the "sqlite" build tag
