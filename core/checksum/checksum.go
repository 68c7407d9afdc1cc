// Package checksum implements PostgreSQL's data-page checksum algorithm.
//
// The algorithm is a fixed external specification (storage/checksum_impl.h
// in the PostgreSQL source tree): the page is treated as an array of
// little-endian 32-bit words and folded through 32 independent FNV-style
// mixing lanes, each seeded from a published base-offset table. Lane states
// are XOR-combined and reduced to 16 bits together with the page's absolute
// block number, so the same bytes stored at a different block address
// produce a different checksum.
//
// On-disk page integers are native-endian; this package assumes the
// little-endian layout used by every platform PostgreSQL checksums are
// verified on in practice.
package checksum

import "encoding/binary"

const (
	// fnvPrime is the 32-bit FNV prime used by the lane mixing step.
	fnvPrime = 16777619

	// nLanes is the number of parallel mixing lanes (N_SUMS in the
	// reference implementation). Each mixing round consumes one 32-bit
	// word per lane, i.e. 128 bytes of page data.
	nLanes = 32
)

// laneSeeds is the reference implementation's base-offset table. The values
// are arbitrary but pinned: changing any of them changes every checksum.
var laneSeeds = [nLanes]uint32{
	0x5B1F36E9, 0xB8525960, 0x02AB50AA, 0x1DE66D2A,
	0x79FF467A, 0x9BB9F8A3, 0x217E7CD2, 0x83E13D2C,
	0xF8D4474F, 0xE39EB970, 0x42C6AE16, 0x993216FA,
	0x7B093B5D, 0x98DAFF3C, 0xF718902A, 0x0B1C9CDB,
	0xE58F764B, 0x187636BC, 0x5D7B3BB1, 0xE73DE7DE,
	0x92BEC979, 0xCCA6C0B2, 0x304A0979, 0x85AA43D4,
	0x783125BB, 0x6CA8EAA2, 0xE407EAC6, 0x4B5CFC3E,
	0x9160BFA9, 0x15BA5A16, 0xFCC6592B, 0x7B7EF58D,
}

// mix folds one 32-bit word into a lane state. This is CHECKSUM_COMP in the
// reference: an FNV multiply with an extra right-shift XOR so that the final
// words of the page still affect high-order state bits.
func mix(state, word uint32) uint32 {
	tmp := state ^ word
	return tmp*fnvPrime ^ (tmp >> 17)
}

// Page computes the checksum of a data page stored at the given absolute
// block number. The page must be exactly the configured page size (a
// multiple of 128 bytes; 8192 in a stock build); behavior on any other
// length is undefined by contract.
//
// The stored checksum field (bytes 8..9 of the page header) is treated as
// zero during the computation, matching the reference which zeroes
// pd_checksum before hashing. Callers therefore never need to copy or
// patch the page before verifying it.
//
// The returned value is never 0: the reference reduces the combined lane
// state with "% 65535 + 1", reserving 0 as the "no checksum present"
// sentinel in the page header.
func Page(page []byte, blkno uint32) uint16 {
	lanes := laneSeeds

	// The pd_checksum field occupies the low half of little-endian word 2.
	// Masking it here is equivalent to zeroing bytes 8..9 of a copy.
	for off := 0; off+4*nLanes <= len(page); off += 4 * nLanes {
		for j := 0; j < nLanes; j++ {
			word := binary.LittleEndian.Uint32(page[off+4*j:])
			if off == 0 && j == 2 {
				word &= 0xFFFF0000
			}
			lanes[j] = mix(lanes[j], word)
		}
	}

	// Two rounds of zero words, so the last page words pass through the
	// multiply step at least twice before they can reach the output.
	for i := 0; i < 2; i++ {
		for j := 0; j < nLanes; j++ {
			lanes[j] = mix(lanes[j], 0)
		}
	}

	var sum uint32
	for j := 0; j < nLanes; j++ {
		sum ^= lanes[j]
	}

	return uint16((sum^blkno)%65535 + 1)
}
