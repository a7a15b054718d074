package decpack

// The delta transform XORs each word against its predecessor. Nearby decimal
// values share most of their component bit patterns, so the XOR stream is
// dominated by small (often zero) words, which is what the per-block width
// selection then exploits. XOR rather than subtraction keeps the transform an
// involution with no sign handling: a ^ b ^ b == a.

// encodeDeltas writes the XOR delta stream of src into dst. prev is the
// predecessor of src[0]: zero for the start of a stream, or the last raw word
// of the preceding block when chaining. dst may alias src; the pass runs
// backward so each position is read before it is written.
func encodeDeltas(dst, src []uint32, prev uint32) {
	for i := len(src) - 1; i > 0; i-- {
		dst[i] = src[i] ^ src[i-1]
	}
	if len(src) > 0 {
		dst[0] = src[0] ^ prev
	}
}

// decodeDeltas reconstructs the word stream from its XOR deltas in a single
// forward pass, seeding the running accumulator with prev. It returns the
// final raw word so the caller can chain the next block. dst may alias deltas.
func decodeDeltas(dst, deltas []uint32, prev uint32) uint32 {
	for i, d := range deltas {
		prev ^= d
		dst[i] = prev
	}
	return prev
}
