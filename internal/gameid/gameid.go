// Package gameid issues identifiers for tables and settled rounds.
package gameid

import (
	"github.com/google/uuid"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the size of an encoded identifier.
const Length = 26

// Generate returns a UUIDv7 encoded as a 26-character base32 string. IDs
// sort by creation time, which keeps ledger history ordered.
func Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		id = uuid.New()
	}
	return encodeBase32(id)
}

// encodeBase32 encodes 128 bits as 26 characters, 5 bits at a time, with
// two zero bits of padding at the front.
func encodeBase32(data [16]byte) string {
	result := make([]byte, Length)

	// Treat the id as a 130-bit big-endian number; character i covers bits
	// [i*5-2, i*5+3) of the original 128.
	for i := 0; i < Length; i++ {
		var value uint8
		for b := 0; b < 5; b++ {
			bit := i*5 + b - 2
			value <<= 1
			if bit < 0 {
				continue
			}
			if data[bit/8]&(0x80>>(bit%8)) != 0 {
				value |= 1
			}
		}
		result[i] = alphabet[value]
	}

	return string(result)
}
