package decpack

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackEmpty(t *testing.T) {
	buf := Pack(nil, nil)
	assert.Equal(t, headerSize, len(buf), "empty container is header only")
	got, err := Unpack(nil, buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPackUnpackSingleValues(t *testing.T) {
	cases := []struct {
		name  string
		value Decimal
	}{
		{"zero", Decimal{}},
		{"negative zero", MustNew(0, 0, 0, true, 0)},
		{"negative zero with scale", MustNew(0, 0, 0, true, 9)},
		{"max", MaxDecimal},
		{"min", MinDecimal},
		{"max scale", MustParse("0.0000000000000000000000000001")},
		{"mixed", MustParse("-111.866089137820393")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertRoundTrip(t, []Decimal{tc.value})
		})
	}
}

func TestPackUnpackMixedSample(t *testing.T) {
	assertRoundTrip(t, []Decimal{
		MustParse("0.866089137820393"),
		MustParse("11.866089137820393"),
		MustParse("-111.866089137820393"),
		MustParse("0.0"),
		MustParse("1.0"),
		MustParse("-1.0"),
		MaxDecimal,
		MinDecimal,
	})
}

func TestPackUnpackRandomValues(t *testing.T) {
	assertRoundTrip(t, genRandomDecimals(257, 1))
}

func TestPackUnpackBlockBoundaries(t *testing.T) {
	for _, n := range []int{1, 2, 127, 128, 129, 255, 256, 257, 1000} {
		assertRoundTrip(t, genWalk(n, int64(n)))
	}
}

func TestPackerMatchesPack(t *testing.T) {
	values := genWalk(300, 9)
	p := NewPacker()
	for _, v := range values {
		p.Add(v)
	}
	assert.Equal(t, len(values), p.Len())
	assert.Equal(t, Pack(nil, values), p.Finish(nil), "incremental packing must be byte-identical")
}

func TestPackAppendsToDst(t *testing.T) {
	assert := assert.New(t)
	values := genWalk(10, 3)
	prefix := make([]byte, 8, 8+MaxPackedSize(len(values)))
	for i := range prefix {
		prefix[i] = byte(i)
	}
	buf := Pack(prefix, values)
	assert.Equal(&prefix[0], &buf[0], "expected Pack to reuse dst capacity")
	assert.Equal(prefix, buf[:len(prefix)], "prefix corrupted")

	got, err := Unpack(nil, buf[len(prefix):])
	require.NoError(t, err)
	assert.Equal(values, got)
}

func TestUnpackReusesDst(t *testing.T) {
	assert := assert.New(t)
	values := genWalk(100, 4)
	buf := Pack(nil, values)
	dst := make([]Decimal, 0, 256)
	got, err := Unpack(dst, buf)
	require.NoError(t, err)
	assert.Equal(&dst[:1][0], &got[0], "expected Unpack to reuse dst backing array")
	assert.Equal(values, got)
}

func TestMaxPackedSizeBound(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 129, 300} {
		buf := Pack(nil, genRandomDecimals(n, int64(n)))
		assert.LessOrEqual(t, len(buf), MaxPackedSize(n), "bound violated for %d values", n)
	}
}

func TestConstantRunCompression(t *testing.T) {
	assert := assert.New(t)
	v := MustParse("123.456")
	run := func(n int) []byte {
		values := make([]Decimal, n)
		for i := range values {
			values[i] = v
		}
		return assertRoundTrip(t, values)
	}

	buf := run(1000)

	// Every block group after the first packs only zero deltas.
	widths := sectionWidths(t, buf, 1000)
	require.Equal(t, numBlocksFor(1000), len(widths))
	for g := 1; g < len(widths); g++ {
		for c, w := range widths[g] {
			assert.Equal(0, w, "block %d component %d should be all-zero deltas", g, c)
		}
	}

	// Doubling the run length adds only the per-group width bytes.
	buf2 := run(2000)
	extraGroups := numBlocksFor(2000) - numBlocksFor(1000)
	assert.Equal(len(buf)+extraGroups*componentCount, len(buf2),
		"constant run should cost 4 bytes per additional block group")
}

func TestScenarioCloseValues(t *testing.T) {
	assert := assert.New(t)
	values := []Decimal{MustParse("1.0"), MustParse("2.0"), MustParse("3.0")}
	buf := assertRoundTrip(t, values)
	// Three raw width-32 encodings of all four components are 48 bytes; close
	// values must beat that.
	assert.Less(len(buf)-headerSize, 3*componentCount*4,
		"body should be smaller than raw component words")
}

func TestUnpackRejectsTruncation(t *testing.T) {
	buf := Pack(nil, genWalk(300, 5))
	for cut := 0; cut < len(buf); cut++ {
		_, err := Unpack(nil, buf[:cut])
		assert.Error(t, err, "truncation to %d bytes must fail", cut)
	}
}

func TestUnpackRejectsBadVersion(t *testing.T) {
	buf := Pack(nil, genWalk(5, 6))
	buf[0] = 2
	_, err := Unpack(nil, buf)
	assert.ErrorIs(t, err, ErrCorruptHeader)
}

func TestUnpackRejectsCorruptBody(t *testing.T) {
	buf := Pack(nil, genWalk(50, 7))
	buf[len(buf)-1] ^= 0x40
	_, err := Unpack(nil, buf)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestUnpackRejectsTrailingBytes(t *testing.T) {
	buf := Pack(nil, genWalk(5, 8))
	_, err := Unpack(nil, append(buf, 0))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestUnpackRejectsCountMismatch(t *testing.T) {
	values := []Decimal{MustParse("1.5"), MustParse("1.6"), MustParse("1.7"), MustParse("1.8"), MustParse("1.9")}
	buf := Pack(nil, values)

	for _, count := range []uint32{4, 6} {
		tampered := append([]byte(nil), buf...)
		bo.PutUint32(tampered[1:5], count)
		_, err := Unpack(nil, tampered)
		assert.Error(t, err, "count rewritten to %d must fail", count)
	}
}

func TestUnpackRejectsCountMismatchZeroWidthTail(t *testing.T) {
	// A constant run makes every section of the tail block width 0 with no
	// payload, so the section walk consumes the same bytes for any count
	// inside that block; only the checksum covering the count can tell the
	// tampered container apart.
	v := MustParse("123.456")
	values := make([]Decimal, 200)
	for i := range values {
		values[i] = v
	}
	buf := Pack(nil, values)
	for _, count := range []uint32{129, 199} {
		tampered := append([]byte(nil), buf...)
		bo.PutUint32(tampered[1:5], count)
		_, err := Unpack(nil, tampered)
		assert.ErrorIs(t, err, ErrChecksumMismatch, "count rewritten to %d must fail", count)
	}
}

func TestUnpackRejectsBadWidthByte(t *testing.T) {
	buf := buildContainer(1, []byte{33, 0, 0, 0})
	_, err := Unpack(nil, buf)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestUnpackRejectsBadMetaWord(t *testing.T) {
	// meta packed raw at width 32, remaining components all-zero at width 0.
	body := func(meta uint32) []byte {
		b := []byte{32}
		b = bo.AppendUint32(b, meta)
		return append(b, 0, 0, 0)
	}
	for _, meta := range []uint32{
		1,                     // reserved low bit
		1 << 30,               // reserved high bit
		29 << metaScaleShift,  // out-of-range scale
		255 << metaScaleShift, // wildly out-of-range scale
	} {
		buf := buildContainer(1, body(meta))
		_, err := Unpack(nil, buf)
		assert.ErrorIs(t, err, ErrInvalidEncoding, "meta 0x%08x must be rejected", meta)
	}
}

func TestUnpackRejectsHugeCount(t *testing.T) {
	buf := buildContainer(1<<31, []byte{0, 0, 0, 0})
	_, err := Unpack(nil, buf)
	assert.Error(t, err)
}

// Helpers

// buildContainer assembles a container with a valid checksum around an
// arbitrary body, for crafting malformed inputs.
func buildContainer(count uint32, body []byte) []byte {
	buf := make([]byte, headerSize+len(body))
	putHeader(buf, count, body)
	copy(buf[headerSize:], body)
	return buf
}

// sectionWidths walks a valid container and returns the width byte of every
// section, grouped by block.
func sectionWidths(t *testing.T, buf []byte, count int) [][componentCount]int {
	t.Helper()
	body := buf[headerSize:]
	var out [][componentCount]int
	off := 0
	for g := 0; g < numBlocksFor(count); g++ {
		blockLen := min(BlockSize, count-g*BlockSize)
		var group [componentCount]int
		for c := 0; c < componentCount; c++ {
			require.Less(t, off, len(body))
			width := int(body[off])
			off++
			group[c] = width
			if blockLen == BlockSize {
				off += payloadBytes(width)
			} else {
				off += tailPayloadBytes(blockLen, width)
			}
		}
		out = append(out, group)
	}
	require.Equal(t, len(body), off, "section walk must consume the whole body")
	return out
}

func genRandomDecimals(n int, seed int64) []Decimal {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Decimal, n)
	for i := range out {
		shift := uint(rng.Intn(33))
		lo := rng.Uint32() >> shift
		var mid, hi uint32
		if rng.Intn(4) == 0 {
			mid = rng.Uint32()
		}
		if rng.Intn(8) == 0 {
			hi = rng.Uint32()
		}
		out[i] = MustNew(lo, mid, hi, rng.Intn(2) == 0, uint8(rng.Intn(MaxScale+1)))
	}
	return out
}

// genWalk produces timeseries-shaped data: a random walk over a 64-bit
// significand at a fixed scale, the codec's target case.
func genWalk(n int, seed int64) []Decimal {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Decimal, n)
	sig := uint64(1_000_000_000)
	for i := range out {
		sig += uint64(rng.Intn(2000)) - 1000
		out[i] = MustNew(uint32(sig), uint32(sig>>32), 0, false, 6)
	}
	return out
}

func assertRoundTrip(t *testing.T, values []Decimal) []byte {
	t.Helper()
	buf := Pack(nil, values)
	got, err := Unpack(nil, buf)
	require.NoError(t, err)
	require.Equal(t, len(values), len(got), "length mismatch")
	if len(values) > 0 {
		assert.Equal(t, values, got)
	}
	return buf
}

var (
	resultBytes    []byte
	resultDecimals []Decimal
)

func BenchmarkPack(b *testing.B) {
	values := genWalk(1024, 99)
	dst := make([]byte, 0, MaxPackedSize(len(values)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		dst = Pack(dst[:0], values)
	}
	resultBytes = dst
}

func BenchmarkUnpack(b *testing.B) {
	buf := Pack(nil, genWalk(1024, 99))
	dst := make([]Decimal, 0, 1024)
	b.ReportAllocs()
	var err error
	for i := 0; i < b.N; i++ {
		dst, err = Unpack(dst[:0], buf)
		if err != nil {
			b.Fatal(err)
		}
	}
	resultDecimals = dst
}
