package descriptor

import (
	"fmt"
	"strings"
)

const (
	checksumInputCharset = "0123456789()[],'/*abcdefgh@:$%{}" +
		"IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~" +
		"ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

var checksumGenerator = [5]uint64{0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd}

func polymod(c uint64, val int) uint64 {
	top := c >> 35
	c = (c&0x7ffffffff)<<5 ^ uint64(val)
	for i, g := range checksumGenerator {
		if (top>>i)&1 == 1 {
			c ^= g
		}
	}
	return c
}

// Checksum computes the BIP380 checksum of desc, which must not already
// carry one.
func Checksum(desc string) (string, error) {
	c := uint64(1)
	cls, clsCount := 0, 0
	for i := 0; i < len(desc); i++ {
		pos := strings.IndexByte(checksumInputCharset, desc[i])
		if pos < 0 {
			return "", fmt.Errorf("descriptor checksum: invalid character %q at offset %d", desc[i], i)
		}
		c = polymod(c, pos&31)
		cls = cls*3 + pos>>5
		clsCount++
		if clsCount == 3 {
			c = polymod(c, cls)
			cls, clsCount = 0, 0
		}
	}
	if clsCount > 0 {
		c = polymod(c, cls)
	}
	for i := 0; i < 8; i++ {
		c = polymod(c, 0)
	}
	c ^= 1

	var out [8]byte
	for i := range out {
		out[i] = checksumCharset[(c>>(5*(7-i)))&31]
	}
	return string(out[:]), nil
}

// VerifyChecksum reports whether desc ends in a valid "#checksum" suffix.
func VerifyChecksum(desc string) bool {
	body, sum, ok := strings.Cut(desc, "#")
	if !ok || len(sum) != 8 {
		return false
	}
	want, err := Checksum(body)
	return err == nil && want == sum
}
