package decpack

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Container layout, little-endian throughout:
//
//	Byte  0:      format version (currently 1)
//	Bytes 1-4:    element count (uint32)
//	Bytes 5-12:   xxhash64 of the version byte, the count bytes, and the body
//	Bytes 13-:    body: ceil(count/128) block groups in index order
//
// Each block group holds four sections in component order (meta, lo, mid,
// hi). A section is one width byte (0-32) followed by the packed payload:
// width*16 bytes in the lane-interleaved layout for full blocks, or the
// exact ceil(n*width/8) sequential bytes for the final partial block. The
// container is self-describing: count alone determines every section
// boundary, so decode is a single forward pass with no index.
const (
	formatVersion  = 1
	headerSize     = 13
	componentCount = 4
)

// containerDigest hashes everything the checksum protects: the version and
// count bytes followed by the body. Covering the count matters because a tail
// block whose sections are all width 0 carries no payload, so the section
// walk alone cannot tell nearby counts apart.
func containerDigest(prefix, body []byte) uint64 {
	d := xxhash.New()
	d.Write(prefix)
	d.Write(body)
	return d.Sum64()
}

// putHeader writes the header for a finished body into dst[:headerSize].
func putHeader(dst []byte, count uint32, body []byte) {
	dst[0] = formatVersion
	bo.PutUint32(dst[1:5], count)
	bo.PutUint64(dst[5:13], containerDigest(dst[0:5], body))
}

// parseContainer validates the header and returns the element count and the
// body. The checksum is verified up front: a truncated or corrupted buffer,
// header included, is rejected here before any block is touched, and the
// per-section length checks during decode remain as a second line of defense.
func parseContainer(buf []byte) (count uint32, body []byte, err error) {
	if len(buf) < headerSize {
		return 0, nil, fmt.Errorf("%w: %d bytes is shorter than the %d-byte header",
			ErrTruncatedBuffer, len(buf), headerSize)
	}
	if v := buf[0]; v != formatVersion {
		return 0, nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptHeader, v)
	}
	count = bo.Uint32(buf[1:5])
	sum := bo.Uint64(buf[5:13])
	body = buf[headerSize:]
	if got := containerDigest(buf[0:5], body); got != sum {
		return 0, nil, fmt.Errorf("%w: container hash 0x%016x, header says 0x%016x",
			ErrChecksumMismatch, got, sum)
	}
	return count, body, nil
}

// numBlocksFor returns the number of block groups covering count elements.
func numBlocksFor(count int) int {
	return (count + BlockSize - 1) / BlockSize
}

// MaxPackedSize returns an upper bound on the packed size of n values: the
// header plus, per block group, four sections at the raw 32-bit width. Useful
// for sizing a dst buffer handed to Pack.
func MaxPackedSize(n int) int {
	if n <= 0 {
		return headerSize
	}
	full := n / BlockSize
	size := headerSize + full*componentCount*(1+payloadBytes(maxWidth))
	if tail := n % BlockSize; tail > 0 {
		size += componentCount * (1 + tailPayloadBytes(tail, maxWidth))
	}
	return size
}
