// Package conv formats numbers into caller buffers without fmt or strconv.
package conv

const hexDigits = "0123456789abcdef"

// Hex8 writes b as "0x" and two lowercase hex digits into buf and returns the
// used slice. buf must hold at least 4 bytes; a shorter buf yields buf[:0].
func Hex8(buf []byte, b uint8) []byte {
	if len(buf) < 4 {
		return buf[:0]
	}
	buf[0], buf[1] = '0', 'x'
	buf[2] = hexDigits[b>>4]
	buf[3] = hexDigits[b&0xF]
	return buf[:4]
}

