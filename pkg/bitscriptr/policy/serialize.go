package policy

import (
	"strconv"
	"strings"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/keys"
)

// Serialize converts cfg to its policy expression fragment. Incomplete
// configurations fail with an error wrapping bitscriptr.ErrConfigIncomplete.
func Serialize(cfg Config) (string, error) {
	if err := Check(cfg); err != nil {
		return "", err
	}
	switch c := cfg.(type) {
	case SingleSig:
		return pk(c.Key), nil
	case MultiSig:
		return thresh(c.M, pks(c.Keys)), nil
	case Threshold:
		items := make([]string, len(c.Items))
		for i, it := range c.Items {
			// Key-shaped items are wrapped even when rejected so the
			// classifier reports them instead of the compiler.
			if keys.Classify(it).Kind != keys.KindUnknown {
				items[i] = pk(it)
			} else {
				items[i] = it
			}
		}
		return thresh(c.M, items), nil
	case AbsoluteTimelock:
		return after(c.Value), nil
	case RelativeTimelock:
		return "older(" + strconv.FormatInt(c.Value, 10) + ")", nil
	case Hashlock:
		return string(c.Algorithm) + "(" + c.Hash + ")", nil
	case Vault:
		return or(and(thresh(c.M, pks(c.Keys)), after(c.Delay)), pk(c.CancelKey)), nil
	case Inheritance:
		heirs := and(thresh(c.HeirsThreshold, pks(c.HeirKeys)), after(c.Timelock1))
		third := and(pk(c.ThirdPartyKey), after(c.Timelock2))
		return or(or(pk(c.OwnerKey), heirs), third), nil
	case SimpleEscrow:
		both := and(pk(c.PartyAKey), pk(c.PartyBKey))
		arbiter := and(pk(c.ArbiterKey), after(c.Timeout))
		return or(both, arbiter), nil
	}
	// Check rejects every other variant.
	return "", bitscriptr.Errorf("Serialize", "unsupported configuration %T: %w", cfg, bitscriptr.ErrConfigIncomplete)
}

func pk(key string) string { return "pk(" + key + ")" }

func pks(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = pk(k)
	}
	return out
}

func thresh(m int, items []string) string {
	return "thresh(" + strconv.Itoa(m) + "," + strings.Join(items, ",") + ")"
}

func after(n int64) string { return "after(" + strconv.FormatInt(n, 10) + ")" }

func and(a, b string) string { return "and(" + a + "," + b + ")" }

func or(a, b string) string { return "or(" + a + "," + b + ")" }
