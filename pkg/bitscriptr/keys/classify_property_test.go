package keys

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_CompressedHexAcceptedAnyCase verifies every 02/03-prefixed
// 66-character hex string is accepted regardless of letter case.
func TestProperty_CompressedHexAcceptedAnyCase(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("compressed hex keys are accepted", prop.ForAll(
		func(body []uint8, odd bool, upper []bool) bool {
			prefix := "02"
			if odd {
				prefix = "03"
			}
			raw := []byte(prefix + hex.EncodeToString(body))
			for i := range raw {
				if upper[i] {
					raw[i] = strings.ToUpper(string(raw[i]))[0]
				}
			}
			res := Classify(string(raw))
			return res.Accepted && res.Network == NetworkUnspecified && res.Kind == KindCompressedHex
		},
		gen.SliceOfN(32, gen.UInt8()),
		gen.Bool(),
		gen.SliceOfN(66, gen.Bool()),
	))

	properties.TestingRun(t)
}

// TestProperty_UncompressedHexRejected verifies every 04-prefixed
// 130-character hex string is rejected.
func TestProperty_UncompressedHexRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("uncompressed hex keys are rejected", prop.ForAll(
		func(body []uint8) bool {
			key := "04" + hex.EncodeToString(body)
			res := Classify(key)
			return !res.Accepted && res.Kind == KindUncompressedHex && strings.Contains(res.Reason, key)
		},
		gen.SliceOfN(64, gen.UInt8()),
	))

	properties.TestingRun(t)
}

// TestProperty_AlternatePrefixesRejected verifies SLIP-132 style prefixes are
// always rejected with guidance toward the supported encodings.
func TestProperty_AlternatePrefixesRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("alternate-purpose prefixes are rejected", prop.ForAll(
		func(prefix string, rest string) bool {
			res := Classify(prefix + rest)
			if res.Accepted || res.Kind != KindAltExtended {
				return false
			}
			if strings.HasSuffix(prefix, "prv") {
				return strings.Contains(res.Reason, "use WIF or xprv instead")
			}
			return strings.Contains(res.Reason, "use xpub instead")
		},
		gen.OneConstOf("yprv", "zprv", "vprv", "ypub", "zpub", "vpub"),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
