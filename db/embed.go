// Package db provides the embedded database schema.
package db

import _ "embed"

// Schema contains the DDL statements for all service tables. It is
// idempotent and safe to apply on every start.
//
//go:embed migrations/001_schema.sql
var Schema string
