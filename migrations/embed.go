// Package migrations embeds the schema this process assumes is already
// applied (spec.md §1 treats schema migration tooling as out of scope), so
// integration tests can stand up a throwaway database without shelling out
// to psql.
package migrations

import _ "embed"

//go:embed 0001_init.up.sql
var InitSchema string
