// Package credstore is a SQL-backed implementation of the engine's
// CredentialStore, TOTPStore and ProfileStore, built on sqlx.
//
// Queries are written with "?" placeholders and rebound per driver, so the
// same store runs on PostgreSQL (lib/pq, driver "postgres") and SQLite
// (modernc.org/sqlite, driver "sqlite"). Callers import the driver they use.
//
// Timestamps are stored as Unix nanoseconds and booleans as 0/1 integers to
// keep the schema identical on both engines.
package credstore
