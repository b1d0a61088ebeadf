package cartridge

// NES 2.0 extends the iNES header with a submapper number and explicit
// PRG-RAM/CHR-RAM shift-count sizing; it's distinguished from plain iNES
// 1.0 by two identification bits in byte 7. This file collects the NES
// 2.0-aware parsing helpers so LoadFromReader's main body stays a plain
// iNES reader with a few conditional NES 2.0 branches, the way the
// teacher's single-format reader reads before any of this was added.

// isNES20 reports whether the header uses the NES 2.0 extensions
// (identification bits in Flags7, bits 2-3 == 0b10).
func isNES20(h iNESHeader) bool {
	return h.Flags7&0x0C == 0x08
}

// mapperNumberFromHeader reassembles the mapper number from its iNES
// nibbles. NES 2.0's extra high nibble (byte 8, low bits) would extend
// this to 12 bits, but every mapper this module supports fits in 8, so
// it's not consumed here.
func mapperNumberFromHeader(h iNESHeader) uint8 {
	return (h.Flags6 >> 4) | (h.Flags7 & 0xF0)
}
