package record

import "hash/crc32"

// Checksum computes the CRC-32 checksum of the payload bytes using the
// IEEE polynomial.
func Checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// Validate returns true if the provided checksum matches the computed
// CRC-32 of the payload bytes.
func Validate(payload []byte, checksum uint32) bool {
	return Checksum(payload) == checksum
}
