// Package harness runs YAML conformance scenarios against the record
// engine.
//
// A scenario is a sequence of steps (insert, update, delete, read,
// token, changes, aggregate, advance) executed in order against a
// fresh in-memory store with a fixed clock. Each step appends an event
// to the transcript; the transcript is compared against a golden file
// so behavioral drift in the engine shows up as a fixture diff.
//
// Determinism rules for golden scenarios: every written record must
// carry a client_record_id (random identities change on every run),
// and time only moves through explicit advance steps.
package harness
