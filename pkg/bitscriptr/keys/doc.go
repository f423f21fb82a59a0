// Package keys classifies key-material strings found inside policy
// expressions.
//
// Recognized forms, in priority order:
//
//  1. 66 hex characters starting with 02 or 03: compressed public key,
//     accepted, network unspecified.
//  2. 130 hex characters starting with 04: uncompressed public key, rejected.
//  3. 51 or 52 character base58-check WIF private key: accepted, network taken
//     from the version byte (0x80 mainnet, 0xef testnet).
//  4. Extended keys: xprv/xpub (mainnet) and tprv/tpub (testnet) are accepted
//     after a structural decode; yprv/zprv/vprv and ypub/zpub/vpub are rejected.
//  5. Anything else is rejected.
//
// A key may carry a key-origin prefix ([fingerprint/path]) and extended keys
// may carry a derivation suffix (/0/*, /<0;1>/*). Both are recognized for
// format only and stripped before classification.
package keys
