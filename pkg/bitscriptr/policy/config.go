package policy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind discriminates configuration variants. Its string form matches the
// type names used in policy documents.
type Kind string

const (
	KindSingleSig        Kind = "single-sig"
	KindMultiSig         Kind = "multisig"
	KindThreshold        Kind = "threshold"
	KindAbsoluteTimelock Kind = "absolute-timelock"
	KindRelativeTimelock Kind = "relative-timelock"
	KindHashlock         Kind = "hashlock"
	KindVault            Kind = "vault"
	KindInheritance      Kind = "inheritance"
	KindSimpleEscrow     Kind = "simple-escrow"
)

var kinds = []Kind{
	KindSingleSig, KindMultiSig, KindThreshold,
	KindAbsoluteTimelock, KindRelativeTimelock, KindHashlock,
	KindVault, KindInheritance, KindSimpleEscrow,
}

// Kinds returns every configuration kind, conditions first.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// ParseKind resolves a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown policy type %q", s)
}

func (k Kind) String() string { return string(k) }

// IsPattern reports whether k is a higher-level pattern rather than a single
// condition.
func (k Kind) IsPattern() bool {
	switch k {
	case KindVault, KindInheritance, KindSimpleEscrow:
		return true
	}
	return false
}

// DisplayName returns the human-readable name of k, e.g. "Simple Escrow".
func (k Kind) DisplayName() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(k), "-", " "))
}

// HashAlgorithm names a hashlock digest.
type HashAlgorithm string

const (
	SHA256    HashAlgorithm = "sha256"
	HASH256   HashAlgorithm = "hash256"
	RIPEMD160 HashAlgorithm = "ripemd160"
	HASH160   HashAlgorithm = "hash160"
)

// ParseHashAlgorithm resolves an algorithm name case-insensitively.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch a := HashAlgorithm(strings.ToLower(s)); a {
	case SHA256, HASH256, RIPEMD160, HASH160:
		return a, nil
	}
	return "", fmt.Errorf("unknown hash algorithm %q", s)
}

// DigestLen returns the digest size of a in bytes.
func (a HashAlgorithm) DigestLen() int {
	switch a {
	case SHA256, HASH256:
		return 32
	case RIPEMD160, HASH160:
		return 20
	}
	return 0
}

// Config is the closed set of condition and pattern configurations.
type Config interface {
	Kind() Kind
	isConfig()
}

// SingleSig requires one signature.
type SingleSig struct {
	Key string
}

// MultiSig requires M signatures out of N keys.
type MultiSig struct {
	M, N int
	Keys []string
}

// Threshold requires M of N items. Items that classify as keys are wrapped
// in pk(); anything else is taken as an expression fragment.
type Threshold struct {
	M, N  int
	Items []string
}

// AbsoluteTimelock is satisfied once the chain reaches Value (a block height
// below 500000000, otherwise a unix timestamp).
type AbsoluteTimelock struct {
	Value int64
}

// RelativeTimelock is satisfied Value (BIP68-encoded) after the output
// confirms.
type RelativeTimelock struct {
	Value int64
}

// Hashlock requires a preimage of Hash under Algorithm.
type Hashlock struct {
	Algorithm HashAlgorithm
	Hash      string
}

// Vault lets an M-of-N key set spend after Delay, while CancelKey can spend
// at any time.
type Vault struct {
	M, N      int
	Keys      []string
	Delay     int64
	CancelKey string
}

// Inheritance lets the owner spend at any time, HeirsThreshold of the heirs
// after Timelock1, and a third party after Timelock2.
type Inheritance struct {
	OwnerKey       string
	HeirKeys       []string
	HeirsThreshold int
	Timelock1      int64
	ThirdPartyKey  string
	Timelock2      int64
}

// SimpleEscrow requires both parties, or the arbiter after Timeout.
type SimpleEscrow struct {
	PartyAKey  string
	PartyBKey  string
	ArbiterKey string
	Timeout    int64
}

func (SingleSig) Kind() Kind        { return KindSingleSig }
func (MultiSig) Kind() Kind         { return KindMultiSig }
func (Threshold) Kind() Kind        { return KindThreshold }
func (AbsoluteTimelock) Kind() Kind { return KindAbsoluteTimelock }
func (RelativeTimelock) Kind() Kind { return KindRelativeTimelock }
func (Hashlock) Kind() Kind         { return KindHashlock }
func (Vault) Kind() Kind            { return KindVault }
func (Inheritance) Kind() Kind      { return KindInheritance }
func (SimpleEscrow) Kind() Kind     { return KindSimpleEscrow }

func (SingleSig) isConfig()        {}
func (MultiSig) isConfig()         {}
func (Threshold) isConfig()        {}
func (AbsoluteTimelock) isConfig() {}
func (RelativeTimelock) isConfig() {}
func (Hashlock) isConfig()         {}
func (Vault) isConfig()            {}
func (Inheritance) isConfig()      {}
func (SimpleEscrow) isConfig()     {}
