// Package database provides SQLite connection management and schema
// migrations for Keywarden.
//
// The DB type wraps database/sql with WAL-mode setup, health checks,
// and an embedded-migration runner. Migrations are .sql files compiled
// into the binary by the migrations package.
package database
