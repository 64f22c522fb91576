// Package store provides SQLite-backed durable storage and the
// transaction boundary for the record engines.
//
// The store holds the single point of truth for "run this unit of work
// atomically": engines build per-table plans, and every plan execution
// plus the derived change-log and access-log writes commit together or
// not at all. There is no persisted in-progress state - a crash mid
// transaction leaves the database exactly as before it began.
//
// # Schema
//
// schema.sql (embedded) holds the type-independent tables: application
// info, device info, change logs, issued change-log tokens, access
// logs, preferences and the per-category priority list. Record tables
// are rendered from registry descriptors and applied with ApplyTables
// at open time, so the static and dynamic descriptor paths share one
// code path.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - single-connection pool: one writer at a time; concurrent units
//     of work serialize rather than interleave
package store
