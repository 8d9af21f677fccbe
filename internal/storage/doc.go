package storage

// Package storage persists each owner's ordered reminder sequence.
//
// Drivers:
//   - "file": one JSON document, atomically replaced on every write
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// Every mutation runs as a serialized load -> mutate -> save against the
// latest durable state, so concurrent writers (command handlers and the
// scheduler tick) can never clobber each other's updates.
