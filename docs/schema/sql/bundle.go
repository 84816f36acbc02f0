// Package sqldocs exposes the snapshot schema DDL directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite snapshot schema.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres snapshot schema.
//
//go:embed postgres.sql
var Postgres string
