package table

import (
	"fmt"
	"math/bits"

	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"
)

// BitIndex reads hexDigest as an unsigned big-endian integer of any length
// and reduces it modulo size. Builder and query must agree on this mapping
// exactly, so both go through here.
//
// The reduction is done digit by digit (r = (r*16 + d) mod size), which
// gives the same result as reducing the full integer.
func BitIndex(hexDigest string, size uint64) (uint64, error) {
	if size == 0 {
		panic("table: BitIndex with zero size")
	}
	if hexDigest == "" {
		return 0, fmt.Errorf("%w: empty digest", common.ErrInvalidDigest)
	}

	var r uint64
	for i := 0; i < len(hexDigest); i++ {
		d, ok := hexValue(hexDigest[i])
		if !ok {
			return 0, fmt.Errorf("%w: %q", common.ErrInvalidDigest, hexDigest)
		}
		hi, lo := bits.Mul64(r, 16)
		var carry uint64
		lo, carry = bits.Add64(lo, d, 0)
		hi += carry
		r = bits.Rem64(hi, lo, size)
	}
	return r, nil
}

func hexValue(c byte) (uint64, bool) {
	switch {
	case '0' <= c && c <= '9':
		return uint64(c - '0'), true
	case 'a' <= c && c <= 'f':
		return uint64(c-'a') + 10, true
	case 'A' <= c && c <= 'F':
		return uint64(c-'A') + 10, true
	}
	return 0, false
}
