package transcript

import "encoding/binary"

// decodeMulaw expands G.711 μ-law bytes to 16-bit linear samples.
func decodeMulaw(b []byte) []int16 {
	out := make([]int16, len(b))
	for i, u := range b {
		out[i] = mulawSample(u)
	}
	return out
}

func mulawSample(u byte) int16 {
	u = ^u
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	sample := (int16(mantissa)<<3 + 0x84) << exponent
	sample -= 0x84
	if u&0x80 != 0 {
		return -sample
	}
	return sample
}

// decodeS16LE reads 16-bit little-endian samples; a trailing odd byte is ignored.
func decodeS16LE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
