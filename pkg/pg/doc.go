// Package pg owns the Postgres connection lifecycle for the billing
// service: pooled connections with startup retries, goose schema
// migrations, a health check, and error classification helpers used by the
// storage layers.
package pg
