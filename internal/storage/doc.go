// Package storage keeps the optional delivery history.
//
// Drivers:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
package storage
