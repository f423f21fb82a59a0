// Package registry holds the list of policies a user builds up: entries
// generated from a configuration, entries composed from other entries and
// entries typed in as text.
//
// Entries are immutable values. Selection, validity and expression changes
// produce new entries through the With* methods, and a Registry swaps whole
// entries under its lock.
package registry
