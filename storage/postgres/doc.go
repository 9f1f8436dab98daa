// Package postgres implements the storage interfaces on PostgreSQL through the
// pgx database/sql driver. The schema is embedded and applied on first use.
package postgres
