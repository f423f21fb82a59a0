// Package internalcheck holds source-level checks run as tests over the
// bitscriptr packages. Keys are user data that must not leak into log
// records or be hex-dumped into diagnostics, and these tests enforce that on
// the syntax tree.
//
// # Internal Use Only
//
// The package exports nothing and should not be imported.
package internalcheck
