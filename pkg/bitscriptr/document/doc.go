// Package document loads YAML policy documents: a list of configured
// policies, typed-in expressions and compositions over them, plus an
// optional descriptor request.
//
//	version: "1.0"
//	policies:
//	  - {name: alice, type: single-sig, key: 02...}
//	  - {name: cold, type: vault, m: 2, keys: [...], delay: 1000, cancel_key: 03...}
//	compositions:
//	  - {name: spend, kind: or, of: [alice, cold]}
//	descriptor: {policy: spend, output: wsh, checksum: true}
//
// Documents are checked against an embedded JSON schema before decoding.
// The version must satisfy ^1. For multisig, threshold and vault policies n
// defaults to the number of keys or items.
package document
