package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // ripemd160 is consensus-mandated
)

// HashPreimage returns the hex digest of preimage under alg, suitable for a
// Hashlock configuration.
func HashPreimage(alg HashAlgorithm, preimage []byte) (string, error) {
	var digest []byte
	switch alg {
	case SHA256:
		sum := sha256.Sum256(preimage)
		digest = sum[:]
	case HASH256:
		digest = chainhash.DoubleHashB(preimage)
	case RIPEMD160:
		h := ripemd160.New()
		h.Write(preimage)
		digest = h.Sum(nil)
	case HASH160:
		digest = btcutil.Hash160(preimage)
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", alg)
	}
	return hex.EncodeToString(digest), nil
}

// NewHashlock builds a Hashlock whose hash commits to preimage.
func NewHashlock(alg HashAlgorithm, preimage []byte) (Hashlock, error) {
	h, err := HashPreimage(alg, preimage)
	if err != nil {
		return Hashlock{}, err
	}
	return Hashlock{Algorithm: alg, Hash: h}, nil
}
