package keys

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	compressedHexLen   = 66
	uncompressedHexLen = 130
)

// Classifier classifies key strings. The zero value applies the prefix-only
// rules for hex keys.
type Classifier struct {
	// StrictPoints requires compressed hex keys to decode as secp256k1 points.
	StrictPoints bool
}

// Classify classifies s with the default Classifier.
func Classify(s string) Classification {
	return Classifier{}.Classify(s)
}

// Classify returns the classification of s. It never panics and always
// produces a definitive accept or reject.
func (c Classifier) Classify(s string) Classification {
	body, err := stripOrigin(s)
	if err != nil {
		return reject(KindUnknown, fmt.Sprintf("%q has a malformed key origin: %v", s, err))
	}
	if res, ok := c.classifyHex(s, body); ok {
		return res
	}
	if res, ok := classifyWIF(body); ok {
		return res
	}
	if res, ok := classifyExtended(s, body); ok {
		return res
	}
	return reject(KindUnknown, fmt.Sprintf("%q is not a valid key", s))
}

// IsKey reports whether s is accepted by the default Classifier.
func IsKey(s string) bool {
	return Classify(s).Accepted
}

func (c Classifier) classifyHex(orig, body string) (Classification, bool) {
	if !isHex(body) {
		return Classification{}, false
	}
	switch {
	case len(body) == compressedHexLen && (body[:2] == "02" || body[:2] == "03"):
		if c.StrictPoints {
			raw, _ := hex.DecodeString(body)
			if _, err := btcec.ParsePubKey(raw); err != nil {
				return reject(KindCompressedHex, fmt.Sprintf("compressed public key %q is not a valid secp256k1 point", orig)), true
			}
		}
		return accept(KindCompressedHex, NetworkUnspecified), true
	case len(body) == uncompressedHexLen && body[:2] == "04":
		return reject(KindUncompressedHex, fmt.Sprintf("uncompressed public key %q is not allowed in segwit scripts; use a compressed (02/03) key", orig)), true
	}
	return Classification{}, false
}

func classifyWIF(body string) (Classification, bool) {
	if len(body) != 51 && len(body) != 52 {
		return Classification{}, false
	}
	wif, err := btcutil.DecodeWIF(body)
	if err != nil {
		return Classification{}, false
	}
	switch {
	case wif.IsForNet(&chaincfg.MainNetParams):
		return accept(KindWIF, Mainnet), true
	case wif.IsForNet(&chaincfg.TestNet3Params):
		return accept(KindWIF, Testnet), true
	}
	return Classification{}, false
}

func classifyExtended(orig, body string) (Classification, bool) {
	if len(body) < 4 {
		return Classification{}, false
	}
	var net *chaincfg.Params
	var network Network
	switch prefix := body[:4]; prefix {
	case "yprv", "zprv", "vprv":
		return reject(KindAltExtended, fmt.Sprintf("%q: %s extended private keys are not supported; use WIF or xprv instead", orig, prefix)), true
	case "ypub", "zpub", "vpub":
		return reject(KindAltExtended, fmt.Sprintf("%q: %s extended public keys are not supported; use xpub instead", orig, prefix)), true
	case "xprv", "xpub":
		net, network = &chaincfg.MainNetParams, Mainnet
	case "tprv", "tpub":
		net, network = &chaincfg.TestNet3Params, Testnet
	default:
		return Classification{}, false
	}

	key, path := splitDerivation(body)
	if err := checkDerivation(path); err != nil {
		return reject(KindExtended, fmt.Sprintf("%q has a malformed derivation path: %v", orig, err)), true
	}
	ext, err := hdkeychain.NewKeyFromString(key)
	if err != nil {
		return reject(KindExtended, fmt.Sprintf("extended key %q does not decode: %v", orig, err)), true
	}
	if !ext.IsForNet(net) {
		return reject(KindExtended, fmt.Sprintf("extended key %q does not match the %s version bytes", orig, network)), true
	}
	return accept(KindExtended, network), true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func splitDerivation(body string) (key, path string) {
	if i := strings.IndexByte(body, '/'); i >= 0 {
		return body[:i], body[i:]
	}
	return body, ""
}
