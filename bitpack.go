package decpack

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Block configuration. Full blocks hold exactly 128 words, interleaved into
// 4 lanes of 32 so that all lanes fill and flush their accumulators in step
// at a shared bit width. That geometry is what makes the packer amenable to
// batch (SIMD-style) processing: one flush writes one word per lane into a
// contiguous 16-byte group.
const (
	// BlockSize is the number of words per full block.
	BlockSize = 128
	// laneCount splits a block into four interleaved lanes.
	laneCount = 4
	// laneLength is the number of words per lane.
	laneLength = BlockSize / laneCount
	// maxWidth is the widest legal bit width; width-32 blocks are stored raw.
	maxWidth = 32
)

var bo = binary.LittleEndian

// packLanes and unpackLanes are the full-block pack primitives. They are
// package-level variables so init can swap in the batch implementations on
// platforms that support them; both implementations produce byte-identical
// output.
var (
	packLanes   func(dst []byte, values []uint32, width int) = packLanesScalar
	unpackLanes func(dst []uint32, payload []byte, count, width int) = unpackLanesScalar

	// widePathActive reports whether the batch pack path was selected.
	widePathActive bool
)

func init() {
	initLaneDispatch()
}

// payloadBytes returns the payload size of a full block packed at the given
// width: 32 words per lane times 4 lanes is width*16 bytes, always a whole
// number of 16-byte lane groups.
func payloadBytes(width int) int {
	return width * 16
}

// tailPayloadBytes returns the payload size of a sequentially packed partial
// block: count values at width bits each, padded up to a byte boundary.
func tailPayloadBytes(count, width int) int {
	return (count*width + 7) / 8
}

// requiredBitWidth returns the minimum width in [0, 32] that represents every
// value in the slice, via OR-reduction. Zero means every value is zero and no
// payload bits are needed.
func requiredBitWidth(values []uint32) int {
	var orAll uint32
	for _, v := range values {
		orAll |= v
	}
	return bits.Len32(orAll)
}

func widthMask64(width int) uint64 {
	if width >= maxWidth {
		return 0xFFFFFFFF
	}
	return (1 << width) - 1
}

func widthMask32(width int) uint32 {
	if width >= maxWidth {
		return ^uint32(0)
	}
	return (1 << width) - 1
}

// validateBlockLength panics on oversized input; the pipeline never produces
// blocks larger than BlockSize, so reaching this is a bug in the caller, not
// a data error.
func validateBlockLength(n int) {
	if n > BlockSize {
		panic(fmt.Sprintf("decpack: block length %d exceeds maximum %d", n, BlockSize))
	}
}

// packLanesScalar packs up to BlockSize values at the given width into the
// lane-interleaved layout. Missing tail values are treated as zeros. The
// payload stores each lane's words at stride 16: lane L's word k lives at
// byte offset k*16 + L*4, so a flush of all four lanes is one contiguous
// 16-byte group. Bits fill each word least-significant-first.
func packLanesScalar(dst []byte, values []uint32, width int) {
	validateBlockLength(len(values))
	if width == 0 {
		return
	}
	for lane := 0; lane < laneCount; lane++ {
		packLane(dst, values, lane, width)
	}
}

// packLane packs one lane (elements lane, lane+4, lane+8, ...) through a
// 64-bit accumulator, flushing a 32-bit word whenever one is complete.
func packLane(dst []byte, values []uint32, lane, width int) {
	mask := widthMask64(width)
	var acc uint64
	var nbits int
	out := lane * 4
	for i := 0; i < laneLength; i++ {
		idx := lane + i*laneCount
		var v uint32
		if idx < len(values) {
			v = values[idx]
		}
		acc |= (uint64(v) & mask) << nbits
		nbits += width
		if nbits >= 32 {
			bo.PutUint32(dst[out:], uint32(acc))
			out += laneCount * 4
			acc >>= 32
			nbits -= 32
		}
	}
	if nbits > 0 {
		bo.PutUint32(dst[out:], uint32(acc))
	}
}

// unpackLanesScalar is the inverse of packLanesScalar, writing the first
// count values into dst. Width 0 clears dst without reading any payload.
func unpackLanesScalar(dst []uint32, payload []byte, count, width int) {
	validateBlockLength(count)
	if width == 0 {
		clear(dst[:count])
		return
	}
	for lane := 0; lane < laneCount; lane++ {
		unpackLane(dst, payload, lane, count, width)
	}
}

func unpackLane(dst []uint32, payload []byte, lane, count, width int) {
	mask := widthMask32(width)
	var acc uint64
	var nbits int
	in := lane * 4
	for i := 0; i < laneLength; i++ {
		if nbits < width {
			acc |= uint64(bo.Uint32(payload[in:])) << nbits
			in += laneCount * 4
			nbits += 32
		}
		v := uint32(acc) & mask
		acc >>= width
		nbits -= width
		idx := lane + i*laneCount
		if idx < count {
			dst[idx] = v
		}
	}
}

// packTail packs a partial final block sequentially: values back to back at
// width bits, least-significant-bit first within each byte, padded with zero
// bits up to the last byte boundary. A partial block is packed to its exact
// bit length instead of a padded lane payload so short inputs stay small.
func packTail(dst []byte, values []uint32, width int) {
	validateBlockLength(len(values))
	if width == 0 {
		return
	}
	mask := widthMask64(width)
	var acc uint64
	var nbits int
	out := 0
	for _, v := range values {
		acc |= (uint64(v) & mask) << nbits
		nbits += width
		for nbits >= 8 {
			dst[out] = byte(acc)
			out++
			acc >>= 8
			nbits -= 8
		}
	}
	if nbits > 0 {
		dst[out] = byte(acc)
	}
}

// unpackTail is the inverse of packTail.
func unpackTail(dst []uint32, payload []byte, count, width int) {
	validateBlockLength(count)
	if width == 0 {
		clear(dst[:count])
		return
	}
	mask := widthMask32(width)
	var acc uint64
	var nbits int
	in := 0
	for i := 0; i < count; i++ {
		for nbits < width {
			acc |= uint64(payload[in]) << nbits
			in++
			nbits += 8
		}
		dst[i] = uint32(acc) & mask
		acc >>= width
		nbits -= width
	}
}
