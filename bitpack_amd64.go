//go:build amd64 && !purego

package decpack

import "golang.org/x/sys/cpu"

// The batch implementations process all four lanes in lockstep: one pass over
// the block reads four consecutive values per step into four accumulators
// sharing a single bit counter, and every flush stores one contiguous 16-byte
// lane group. Output is byte-identical to the scalar path; the win is the
// strictly sequential memory traffic and the single shared flush schedule,
// which the hardware can overlap across the four independent accumulators.

func initLaneDispatch() {
	if cpu.X86.HasSSE2 {
		packLanes = packLanesWide
		unpackLanes = unpackLanesWide
		widePathActive = true
	}
}

func packLanesWide(dst []byte, values []uint32, width int) {
	if width == 0 {
		validateBlockLength(len(values))
		return
	}
	if len(values) != BlockSize {
		packLanesScalar(dst, values, width)
		return
	}
	mask := widthMask64(width)
	var acc0, acc1, acc2, acc3 uint64
	var nbits, out int
	for i := 0; i < BlockSize; i += laneCount {
		acc0 |= (uint64(values[i]) & mask) << nbits
		acc1 |= (uint64(values[i+1]) & mask) << nbits
		acc2 |= (uint64(values[i+2]) & mask) << nbits
		acc3 |= (uint64(values[i+3]) & mask) << nbits
		nbits += width
		if nbits >= 32 {
			group := dst[out : out+16]
			bo.PutUint32(group[0:], uint32(acc0))
			bo.PutUint32(group[4:], uint32(acc1))
			bo.PutUint32(group[8:], uint32(acc2))
			bo.PutUint32(group[12:], uint32(acc3))
			acc0 >>= 32
			acc1 >>= 32
			acc2 >>= 32
			acc3 >>= 32
			out += 16
			nbits -= 32
		}
	}
	// 32 values per lane at width bits is a whole number of 32-bit words, so
	// the accumulators are empty here.
}

func unpackLanesWide(dst []uint32, payload []byte, count, width int) {
	if width == 0 {
		validateBlockLength(count)
		clear(dst[:count])
		return
	}
	if count != BlockSize || len(dst) < BlockSize {
		unpackLanesScalar(dst, payload, count, width)
		return
	}
	mask := widthMask32(width)
	var acc0, acc1, acc2, acc3 uint64
	var nbits, in int
	for i := 0; i < BlockSize; i += laneCount {
		if nbits < width {
			group := payload[in : in+16]
			acc0 |= uint64(bo.Uint32(group[0:])) << nbits
			acc1 |= uint64(bo.Uint32(group[4:])) << nbits
			acc2 |= uint64(bo.Uint32(group[8:])) << nbits
			acc3 |= uint64(bo.Uint32(group[12:])) << nbits
			in += 16
			nbits += 32
		}
		dst[i] = uint32(acc0) & mask
		dst[i+1] = uint32(acc1) & mask
		dst[i+2] = uint32(acc2) & mask
		dst[i+3] = uint32(acc3) & mask
		acc0 >>= width
		acc1 >>= width
		acc2 >>= width
		acc3 >>= width
		nbits -= width
	}
}
