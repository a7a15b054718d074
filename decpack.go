// Package decpack implements a binary codec for sequences of fixed-point
// decimal values, tuned for timeseries where consecutive values are
// numerically close.
//
// Each decimal decomposes into four 32-bit component words (meta, lo, mid,
// hi). Per component the codec XORs each word against its predecessor, splits
// the delta stream into blocks of 128, picks the minimum bit width per block,
// and packs the deltas densely at that width into a lane-interleaved,
// batch-processable payload. There is no entropy coding and no dictionary:
// the whole encode path is structural decomposition, one XOR pass, and dense
// bit packing. Pack never fails; Unpack is fallible and stops at the first
// inconsistency. The package maintains no global mutable state and each call
// owns its buffers exclusively.
package decpack

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Error kinds reported by Unpack. All errors are wrapped with context and
// can be tested with errors.Is.
var (
	// ErrTruncatedBuffer means the buffer ends before the header or a
	// declared section payload is fully present.
	ErrTruncatedBuffer = errors.New("decpack: truncated buffer")
	// ErrCorruptHeader means the version or count field is out of the
	// accepted range, or the body length does not match the count.
	ErrCorruptHeader = errors.New("decpack: corrupt header")
	// ErrChecksumMismatch means the version, count, and body do not hash to
	// the header checksum.
	ErrChecksumMismatch = errors.New("decpack: checksum mismatch")
	// ErrInvalidEncoding means a decoded field is malformed: a width byte
	// above 32, or a meta word with reserved bits or an out-of-range scale.
	ErrInvalidEncoding = errors.New("decpack: invalid encoding")
)

// maxElements caps a single container so counts stay within int on every
// platform. The wire format's count field is a uint32 regardless.
const maxElements = math.MaxInt32

// Packer accumulates decimal values one at a time and serializes them on
// Finish. It keeps one raw-word block buffer and one XOR predecessor per
// component, flushing a block group to the body whenever 128 values have
// been added, so memory stays constant in the input length.
//
// A Packer is single-shot: after Finish it must not be reused. It is not
// safe for concurrent use.
type Packer struct {
	body  []byte
	words [componentCount][BlockSize]uint32
	prev  [componentCount]uint32
	idx   int
	count int
}

// NewPacker returns an empty Packer.
func NewPacker() *Packer {
	return &Packer{}
}

// Add appends one value to the stream, flushing a finished block group to
// the internal body buffer when the block fills.
func (p *Packer) Add(d Decimal) {
	if p.count == maxElements {
		panic("decpack: too many values for one container")
	}
	meta, lo, mid, hi := d.Decompose()
	p.words[0][p.idx] = meta
	p.words[1][p.idx] = lo
	p.words[2][p.idx] = mid
	p.words[3][p.idx] = hi
	p.idx++
	p.count++
	if p.idx == BlockSize {
		p.flushFull()
	}
}

// Len returns the number of values added so far.
func (p *Packer) Len() int {
	return p.count
}

// flushFull delta-transforms and packs one full block per component,
// appending the four sections of the block group to the body.
func (p *Packer) flushFull() {
	var deltas [BlockSize]uint32
	for c := 0; c < componentCount; c++ {
		raw := p.words[c][:]
		encodeDeltas(deltas[:], raw, p.prev[c])
		p.prev[c] = raw[BlockSize-1]
		width := requiredBitWidth(deltas[:])
		p.body = append(p.body, byte(width))
		if width > 0 {
			var payload []byte
			p.body, payload = growBody(p.body, payloadBytes(width))
			packLanes(payload, deltas[:], width)
		}
	}
	p.idx = 0
}

// flushTail packs the partial final block sequentially at its exact bit
// length.
func (p *Packer) flushTail() {
	var deltas [BlockSize]uint32
	n := p.idx
	for c := 0; c < componentCount; c++ {
		raw := p.words[c][:n]
		encodeDeltas(deltas[:n], raw, p.prev[c])
		p.prev[c] = raw[n-1]
		width := requiredBitWidth(deltas[:n])
		p.body = append(p.body, byte(width))
		if width > 0 {
			var payload []byte
			p.body, payload = growBody(p.body, tailPayloadBytes(n, width))
			packTail(payload, deltas[:n], width)
		}
	}
	p.idx = 0
}

// Finish flushes any partial block, prepends the header, and appends the
// complete container to dst (which may be nil), returning the extended slice.
func (p *Packer) Finish(dst []byte) []byte {
	if p.idx > 0 {
		p.flushTail()
	}
	start := len(dst)
	dst = slices.Grow(dst, headerSize+len(p.body))
	dst = dst[:start+headerSize+len(p.body)]
	putHeader(dst[start:], uint32(p.count), p.body)
	copy(dst[start+headerSize:], p.body)
	return dst
}

// growBody extends body by n zeroed bytes and returns the extended slice
// along with the new region for the packer to fill.
func growBody(body []byte, n int) ([]byte, []byte) {
	start := len(body)
	body = slices.Grow(body, n)
	body = body[:start+n]
	region := body[start:]
	clear(region)
	return body, region
}

// Pack encodes values into a self-describing container and appends it to dst
// (which may be nil), returning the extended slice. Pack always succeeds:
// every legal decimal sequence, including the empty one, has an encoding.
// Callers that reuse dst across calls must not share it between concurrent
// Pack invocations.
func Pack(dst []byte, values []Decimal) []byte {
	var p Packer
	for _, v := range values {
		p.Add(v)
	}
	return p.Finish(dst)
}

// Unpack decodes a container produced by Pack or Packer.Finish, writing the
// values into dst (reused if it has capacity, reallocated otherwise). It
// fails with an error wrapping one of the Err sentinels if buf is not a
// well-formed container, and never returns a partial result: a single bad
// block desynchronizes the forward-only cursor for everything after it, so
// decoding stops at the first inconsistency.
func Unpack(dst []Decimal, buf []byte) ([]Decimal, error) {
	count32, body, err := parseContainer(buf)
	if err != nil {
		return nil, err
	}
	if count32 > maxElements {
		return nil, fmt.Errorf("%w: count %d out of range", ErrCorruptHeader, count32)
	}

	// Every block group carries at least its four width bytes, so an
	// implausibly large count is detectable before allocating for it.
	minBody := (uint64(count32) + BlockSize - 1) / BlockSize * componentCount
	if minBody > uint64(len(body)) {
		return nil, fmt.Errorf("%w: count %d needs at least %d body bytes, got %d",
			ErrTruncatedBuffer, count32, minBody, len(body))
	}

	count := int(count32)
	if count == 0 {
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes after empty container", ErrCorruptHeader, len(body))
		}
		if dst == nil {
			return nil, nil
		}
		return dst[:0], nil
	}

	if cap(dst) < count {
		dst = make([]Decimal, 0, count)
	} else {
		dst = dst[:0]
	}

	var words [componentCount][BlockSize]uint32
	var prev [componentCount]uint32
	off := 0
	for g := 0; g < numBlocksFor(count); g++ {
		blockLen := min(BlockSize, count-g*BlockSize)
		full := blockLen == BlockSize
		for c := 0; c < componentCount; c++ {
			if off >= len(body) {
				return nil, fmt.Errorf("%w: missing width byte for block %d component %d",
					ErrTruncatedBuffer, g, c)
			}
			width := int(body[off])
			off++
			if width > maxWidth {
				return nil, fmt.Errorf("%w: width byte %d out of range in block %d component %d",
					ErrInvalidEncoding, width, g, c)
			}
			var size int
			if full {
				size = payloadBytes(width)
			} else {
				size = tailPayloadBytes(blockLen, width)
			}
			if off+size > len(body) {
				return nil, fmt.Errorf("%w: block %d component %d payload needs %d bytes, %d left",
					ErrTruncatedBuffer, g, c, size, len(body)-off)
			}
			if full {
				unpackLanes(words[c][:], body[off:off+size], BlockSize, width)
			} else {
				unpackTail(words[c][:blockLen], body[off:off+size], blockLen, width)
			}
			off += size
			prev[c] = decodeDeltas(words[c][:blockLen], words[c][:blockLen], prev[c])
		}
		for j := 0; j < blockLen; j++ {
			d, err := Recompose(words[0][j], words[1][j], words[2][j], words[3][j])
			if err != nil {
				return nil, err
			}
			dst = append(dst, d)
		}
	}
	if off != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes after last block group", ErrCorruptHeader, len(body)-off)
	}
	return dst, nil
}
