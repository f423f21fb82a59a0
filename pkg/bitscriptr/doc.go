// Package bitscriptr builds Bitcoin spending-policy expressions from
// structured conditions and patterns, validates them against the key-format
// and script rules, and assembles output descriptors.
//
// The root package carries the shared error values, configuration and version
// information. The pipeline itself lives in the subpackages:
//
//   - keys: key-material classification (hex, WIF, extended keys)
//   - policy: condition and pattern configurations and their serialization
//   - compose: AND/OR/THRESHOLD composition of existing expressions
//   - keymap: placeholder substitution around the policy compiler
//   - compiler: the policy compiler interface and implementations
//   - validate: the validation pipeline
//   - descriptor: output descriptor assembly
//   - registry: the in-memory list of policy entries
//   - document: YAML policy documents
package bitscriptr
