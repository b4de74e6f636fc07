// Package ecc implements the MIPI CSI-2 packet-header error correcting
// code: a Hamming(24,8) code covering the 3-byte short/long packet header
// (VC||DT||WC), producing a single ECC byte that can correct one bad bit
// and detect two. spec.md §9 flags this as inconsistently implemented
// across the source documents; this follows the MIPI CSI-2 specification's
// published parity-check matrix rather than any one source file.
package ecc

import "sync"

// Generate computes the 8-bit ECC for a CSI-2 short/long packet header
// given the 24-bit data word D = WC<<8 | DI, where DI = (vc<<6)|dt and WC
// is the 16-bit word count (or, for short packets, the 16-bit counter
// value). Only the low 6 bits carry parity; the top two bits are unused
// and always zero.
func Generate(vc uint8, dt uint8, wc uint16) byte {
	di := (vc << 6) | (dt & 0x3F)
	d := uint32(di) | uint32(wc)<<8 // D0..D23, D0 = LSB of di
	return encode(d)
}

// bit returns bit i of d (0 = LSB).
func bit(d uint32, i uint) uint32 {
	return (d >> i) & 1
}

func parity(d uint32, bits ...uint) uint32 {
	var p uint32
	for _, b := range bits {
		p ^= bit(d, b)
	}
	return p
}

// encode computes the six Hamming parity bits over the 24-bit word
// per the MIPI CSI-2 ECC parity-check matrix.
func encode(d uint32) byte {
	p0 := parity(d, 0, 1, 2, 4, 5, 7, 10, 11, 13, 16, 20, 21, 22, 23)
	p1 := parity(d, 0, 1, 3, 4, 6, 8, 10, 12, 14, 17, 20, 21, 22, 23)
	p2 := parity(d, 0, 2, 3, 5, 6, 9, 11, 12, 15, 18, 20, 21, 22)
	p3 := parity(d, 1, 2, 3, 7, 8, 9, 13, 14, 15, 19, 20, 21, 23)
	p4 := parity(d, 4, 5, 6, 7, 8, 9, 16, 17, 18, 19, 20, 22, 23)
	p5 := parity(d, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 21, 22, 23)
	return byte(p0 | p1<<1 | p2<<2 | p3<<3 | p4<<4 | p5<<5)
}

// Check validates a received (vc, dt, wc, eccReceived) header. It returns
// the (possibly corrected) vc/dt/wc, whether a single-bit error was
// corrected, and whether the header is trustworthy after correction
// (false only when the syndrome indicates an uncorrectable multi-bit
// error).
func Check(vc uint8, dt uint8, wc uint16, eccReceived byte) (vcOut uint8, dtOut uint8, wcOut uint16, corrected bool, ok bool) {
	di := (vc << 6) | (dt & 0x3F)
	d := uint32(di) | uint32(wc)<<8

	eccComputed := encode(d)
	syndrome := eccComputed ^ eccReceived

	if syndrome == 0 {
		return vc, dt, wc, false, true
	}

	// A single flipped data bit changes the syndrome to a non-zero value
	// that maps back to exactly one of the 24 data-bit positions in the
	// parity-check matrix. Build that mapping by flipping each data bit
	// in turn and recording the syndrome it produces.
	if pos, isData := syndromeToDataBit(syndrome); isData {
		vcFixed, dtFixed, wcFixed := decodeHeader(d ^ (1 << pos))
		return vcFixed, dtFixed, wcFixed, true, true
	}

	// Syndrome doesn't correspond to a single data-bit flip: either a
	// single ECC-bit error (self-correcting, data unaffected) or an
	// uncorrectable multi-bit error. Distinguish by checking whether the
	// syndrome has exactly one bit set among the 6 parity bits: if so the
	// error is in the ECC byte itself and the data is fine.
	if isPowerOfTwo(uint32(syndrome) & 0x3F) {
		return vc, dt, wc, true, true
	}

	return vc, dt, wc, false, false
}

func isPowerOfTwo(x uint32) bool {
	return x != 0 && x&(x-1) == 0
}

func decodeHeader(d uint32) (uint8, uint8, uint16) {
	di := byte(d & 0xFF)
	wc := uint16(d >> 8)
	vc := di >> 6
	dt := di & 0x3F
	return vc, dt, wc
}

// syndromeToDataBit maps a 6-bit syndrome to the 0..23 data bit position
// whose single-bit flip produces it, built once from the parity matrix.
func syndromeToDataBit(syndrome byte) (uint, bool) {
	table := dataBitSyndromeTable()
	pos, ok := table[syndrome]
	return pos, ok
}

var (
	cachedTable     map[byte]uint
	cachedTableOnce sync.Once
)

func dataBitSyndromeTable() map[byte]uint {
	cachedTableOnce.Do(func() {
		t := make(map[byte]uint, 24)
		for bitPos := uint(0); bitPos < 24; bitPos++ {
			base := encode(0)
			flipped := encode(uint32(1) << bitPos)
			syn := base ^ flipped
			t[syn] = bitPos
		}
		cachedTable = t
	})
	return cachedTable
}
