package policy

import (
	"encoding/hex"
	"fmt"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
)

// MaxLockValue bounds after() and older() arguments: 1 <= n < 2^31.
const MaxLockValue = 1<<31 - 1

// Check reports whether cfg is complete enough to serialize. Errors wrap
// bitscriptr.ErrConfigIncomplete.
func Check(cfg Config) error {
	if err := check(cfg); err != nil {
		return bitscriptr.Errorf("Check", "%s: %v: %w", kindOf(cfg), err, bitscriptr.ErrConfigIncomplete)
	}
	return nil
}

func kindOf(cfg Config) string {
	if cfg == nil {
		return "nil"
	}
	return string(cfg.Kind())
}

func check(cfg Config) error {
	switch c := cfg.(type) {
	case SingleSig:
		return checkKey("key", c.Key)
	case MultiSig:
		return checkThreshold(c.M, c.N, c.Keys, "keys")
	case Threshold:
		return checkThreshold(c.M, c.N, c.Items, "items")
	case AbsoluteTimelock:
		return checkLock("value", c.Value)
	case RelativeTimelock:
		return checkLock("value", c.Value)
	case Hashlock:
		return checkHash(c.Algorithm, c.Hash)
	case Vault:
		if err := checkThreshold(c.M, c.N, c.Keys, "keys"); err != nil {
			return err
		}
		if err := checkLock("delay", c.Delay); err != nil {
			return err
		}
		return checkKey("cancel key", c.CancelKey)
	case Inheritance:
		if err := checkKey("owner key", c.OwnerKey); err != nil {
			return err
		}
		if len(c.HeirKeys) == 0 {
			return fmt.Errorf("at least one heir key is required")
		}
		if err := checkThreshold(c.HeirsThreshold, len(c.HeirKeys), c.HeirKeys, "heir keys"); err != nil {
			return err
		}
		if err := checkKey("third party key", c.ThirdPartyKey); err != nil {
			return err
		}
		if err := checkLock("timelock1", c.Timelock1); err != nil {
			return err
		}
		if err := checkLock("timelock2", c.Timelock2); err != nil {
			return err
		}
		if c.Timelock2 <= c.Timelock1 {
			return fmt.Errorf("timelock2 (%d) must be greater than timelock1 (%d)", c.Timelock2, c.Timelock1)
		}
		return nil
	case SimpleEscrow:
		for _, f := range []struct{ name, key string }{
			{"party A key", c.PartyAKey},
			{"party B key", c.PartyBKey},
			{"arbiter key", c.ArbiterKey},
		} {
			if err := checkKey(f.name, f.key); err != nil {
				return err
			}
		}
		return checkLock("timeout", c.Timeout)
	case nil:
		return fmt.Errorf("nil configuration")
	default:
		return fmt.Errorf("unsupported configuration %T", cfg)
	}
}

func checkKey(field, key string) error {
	if key == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func checkThreshold(m, n int, items []string, field string) error {
	if n < 1 {
		return fmt.Errorf("n must be positive, got %d", n)
	}
	if m < 1 || m > n {
		return fmt.Errorf("threshold %d must be between 1 and %d", m, n)
	}
	if len(items) != n {
		return fmt.Errorf("expected %d %s, got %d", n, field, len(items))
	}
	for i, it := range items {
		if it == "" {
			return fmt.Errorf("%s[%d] is empty", field, i)
		}
	}
	return nil
}

func checkLock(field string, v int64) error {
	if v < 1 || v > MaxLockValue {
		return fmt.Errorf("%s %d must be between 1 and %d", field, v, int64(MaxLockValue))
	}
	return nil
}

func checkHash(alg HashAlgorithm, h string) error {
	size := alg.DigestLen()
	if size == 0 {
		return fmt.Errorf("unknown hash algorithm %q", alg)
	}
	if len(h) != 2*size {
		return fmt.Errorf("%s hash must be %d hex characters, got %d", alg, 2*size, len(h))
	}
	if _, err := hex.DecodeString(h); err != nil {
		return fmt.Errorf("%s hash is not hex", alg)
	}
	return nil
}
