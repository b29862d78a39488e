// Package types defines shared Go types used across tickerdeck packages.
// These are the canonical in-memory representations of instrument identity,
// separate from any wire or display format.
package types
