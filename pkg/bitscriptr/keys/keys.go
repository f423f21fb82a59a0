package keys

import (
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
)

// Network identifies the Bitcoin network a key is bound to.
type Network int

const (
	NetworkUnspecified Network = iota
	Mainnet
	Testnet
)

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	default:
		return "unspecified"
	}
}

// Kind names the encoding recognized by the classifier.
type Kind int

const (
	KindUnknown Kind = iota
	KindCompressedHex
	KindUncompressedHex
	KindWIF
	KindExtended
	KindAltExtended
)

func (k Kind) String() string {
	switch k {
	case KindCompressedHex:
		return "compressed-hex"
	case KindUncompressedHex:
		return "uncompressed-hex"
	case KindWIF:
		return "wif"
	case KindExtended:
		return "extended"
	case KindAltExtended:
		return "alt-extended"
	default:
		return "unknown"
	}
}

// Classification is the outcome of classifying one key string.
type Classification struct {
	Accepted bool
	Network  Network
	Kind     Kind
	// Reason is a user-facing diagnostic. It is empty for accepted keys.
	Reason string
}

// Err returns nil for accepted keys and an error wrapping
// bitscriptr.ErrKeyRejected otherwise.
func (c Classification) Err() error {
	if c.Accepted {
		return nil
	}
	return bitscriptr.Errorf("Classify", "%s: %w", c.Reason, bitscriptr.ErrKeyRejected)
}

func accept(kind Kind, net Network) Classification {
	return Classification{Accepted: true, Network: net, Kind: kind}
}

func reject(kind Kind, reason string) Classification {
	return Classification{Kind: kind, Reason: reason}
}
