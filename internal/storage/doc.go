// Package storage persists the scheduler's job document and run history.
//
// Drivers:
//   - "file" (default): the job document is a single JSON file at Config.Path,
//     overwritten whole on every save; run history is appended to
//     <path-without-ext>.runs.jsonl next to it.
//   - "sqlite": one database file holding a documents table and a runs table.
//   - "memory": process-local, for tests and dry runs.
//
// The store treats the document as opaque bytes; encoding belongs to the caller.
package storage
