// Package engine implements the transactional health record engine.
//
// The engine sits between callers and the store: it resolves caller
// identity, assigns record identity, enforces ownership, and emits
// change and access logs as side effects of every mutation.
//
// # Transaction Discipline
//
// Each public operation runs inside exactly one store transaction.
// Everything an operation does, including its change-log and
// access-log writes, commits or rolls back together. A batch insert of
// N records is all-or-nothing; a delete that trips an ownership check
// leaves every row in place.
//
// # Record Identity
//
// Records carry a UUID assigned at insert time. When the caller
// supplies a client record id, the UUID is derived deterministically
// from (package name, client record id, type namespace), so
// re-inserting the same logical record converges on the same row.
// Records without a client record id get a random UUID per insert.
//
// # Change Logs
//
// Every mutation appends change-log rows keyed by (record type,
// writing app). Consumers register a filter via GetChangeLogToken and
// page through GetChanges; tokens are opaque strings that remain valid
// until the retention job trims the log window.
//
// # Access Control
//
// Callers are identified by package name. A caller may always read and
// delete its own rows; reading other apps' data is subject to the
// historic-access cutoff, and deleting another app's row fails the
// whole operation with an ownership violation. The unrestricted
// variants (InsertUnrestricted, DeleteUnrestricted) bypass these
// checks for restore and retention flows.
package engine
