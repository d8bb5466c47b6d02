// Package identity owns the Account record: its persistence boundary, the
// store adapters (PostgreSQL, SQLite, memory) and the safe view that every
// outbound account representation goes through.
//
// Password hashing and token digests live in cmd/security; this package only
// stores the resulting digest.
package identity
