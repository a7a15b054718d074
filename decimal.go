package decpack

import (
	"fmt"
	"strings"
)

// Decimal is an exact fixed-point number: an unsigned 96-bit significand
// stored as three little-endian 32-bit limbs, a sign flag, and a decimal
// scale in [0, 28]. The numeric value is (-1)^neg * significand / 10^scale.
//
// Decimal is an immutable value type and is safe to copy and compare with ==.
// A negative zero (zero significand with the sign flag set) is a distinct,
// legal value and round-trips through the codec bit-exactly.
type Decimal struct {
	lo, mid, hi uint32
	neg         bool
	scale       uint8
}

// MaxScale is the largest supported number of fractional digits.
const MaxScale = 28

// Meta word layout. The scale occupies bits 16-23 and the sign bit 31; every
// other bit is reserved and must be zero for the encoding to be valid.
const (
	metaScaleShift   = 16
	metaScaleMask    = uint32(0xFF) << metaScaleShift
	metaSignBit      = uint32(1) << 31
	metaReservedMask = ^(metaScaleMask | metaSignBit)
)

var (
	// MaxDecimal is the largest representable value: 2^96-1 at scale 0.
	MaxDecimal = Decimal{lo: ^uint32(0), mid: ^uint32(0), hi: ^uint32(0)}
	// MinDecimal is the most negative representable value: -(2^96-1) at scale 0.
	MinDecimal = Decimal{lo: ^uint32(0), mid: ^uint32(0), hi: ^uint32(0), neg: true}
)

// New builds a Decimal from its significand limbs, sign, and scale.
// The sign flag is kept as given even for a zero significand.
func New(lo, mid, hi uint32, neg bool, scale uint8) (Decimal, error) {
	if scale > MaxScale {
		return Decimal{}, fmt.Errorf("decpack: scale %d exceeds maximum %d", scale, MaxScale)
	}
	return Decimal{lo: lo, mid: mid, hi: hi, neg: neg, scale: scale}, nil
}

// MustNew is like New but panics on an invalid scale.
func MustNew(lo, mid, hi uint32, neg bool, scale uint8) Decimal {
	d, err := New(lo, mid, hi, neg, scale)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether the significand is zero, regardless of sign or scale.
func (d Decimal) IsZero() bool {
	return d.lo|d.mid|d.hi == 0
}

// Neg reports whether the sign flag is set.
func (d Decimal) Neg() bool {
	return d.neg
}

// Scale returns the number of fractional digits.
func (d Decimal) Scale() uint8 {
	return d.scale
}

// Equal reports structural equality: sign, scale, and significand all match.
// 1.0 and 1.00 are therefore not equal, mirroring the codec's round-trip
// contract.
func (d Decimal) Equal(other Decimal) bool {
	return d == other
}

// Decompose splits the value into its four 32-bit component words: the meta
// word (sign and scale) and the three significand limbs in little-endian
// word order. It is the exact inverse of Recompose.
func (d Decimal) Decompose() (meta, lo, mid, hi uint32) {
	meta = uint32(d.scale) << metaScaleShift
	if d.neg {
		meta |= metaSignBit
	}
	return meta, d.lo, d.mid, d.hi
}

// Recompose rebuilds a Decimal from its component words. It fails with
// ErrInvalidEncoding if any reserved meta bit is set or the scale is out of
// range, so a corrupted stream cannot silently produce a malformed value.
func Recompose(meta, lo, mid, hi uint32) (Decimal, error) {
	if meta&metaReservedMask != 0 {
		return Decimal{}, fmt.Errorf("%w: reserved meta bits set (0x%08x)", ErrInvalidEncoding, meta)
	}
	scale := uint8((meta & metaScaleMask) >> metaScaleShift)
	if scale > MaxScale {
		return Decimal{}, fmt.Errorf("%w: scale %d exceeds maximum %d", ErrInvalidEncoding, scale, MaxScale)
	}
	return Decimal{lo: lo, mid: mid, hi: hi, neg: meta&metaSignBit != 0, scale: scale}, nil
}

// Parse reads a decimal from its text form: an optional sign, an integer
// part, and an optional fraction ("-12.5", "0.866089137820393", ".5").
// The number of fractional digits becomes the scale and must not exceed
// MaxScale; the significand must fit in 96 bits.
func Parse(s string) (Decimal, error) {
	orig := s
	var neg bool
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	intPart := s
	var fracPart string
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, fracPart = s[:dot], s[dot+1:]
		if fracPart == "" {
			return Decimal{}, fmt.Errorf("decpack: invalid decimal %q: trailing decimal point", orig)
		}
	}
	if intPart == "" && fracPart == "" {
		return Decimal{}, fmt.Errorf("decpack: invalid decimal %q: no digits", orig)
	}
	if len(fracPart) > MaxScale {
		return Decimal{}, fmt.Errorf("decpack: invalid decimal %q: %d fractional digits exceed maximum %d",
			orig, len(fracPart), MaxScale)
	}

	var lo, mid, hi uint32
	for _, part := range [2]string{intPart, fracPart} {
		for i := 0; i < len(part); i++ {
			c := part[i]
			if c < '0' || c > '9' {
				return Decimal{}, fmt.Errorf("decpack: invalid decimal %q: unexpected character %q", orig, c)
			}
			var ok bool
			lo, mid, hi, ok = mulAdd10(lo, mid, hi, uint32(c-'0'))
			if !ok {
				return Decimal{}, fmt.Errorf("decpack: invalid decimal %q: significand exceeds 96 bits", orig)
			}
		}
	}
	return Decimal{lo: lo, mid: mid, hi: hi, neg: neg, scale: uint8(len(fracPart))}, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the exact fixed-point text form. Trailing zeros implied by
// the scale are kept, so MustParse("1.50").String() == "1.50". A negative
// zero renders with its sign.
func (d Decimal) String() string {
	// 2^96-1 has 29 digits.
	var buf [29]byte
	i := len(buf)
	lo, mid, hi := d.lo, d.mid, d.hi
	for {
		var r uint32
		lo, mid, hi, r = divmod10(lo, mid, hi)
		i--
		buf[i] = '0' + byte(r)
		if lo|mid|hi == 0 {
			break
		}
	}
	digits := buf[i:]

	var sb strings.Builder
	sb.Grow(len(digits) + 3)
	if d.neg {
		sb.WriteByte('-')
	}
	sc := int(d.scale)
	switch {
	case sc == 0:
		sb.Write(digits)
	case len(digits) <= sc:
		sb.WriteString("0.")
		for j := 0; j < sc-len(digits); j++ {
			sb.WriteByte('0')
		}
		sb.Write(digits)
	default:
		sb.Write(digits[:len(digits)-sc])
		sb.WriteByte('.')
		sb.Write(digits[len(digits)-sc:])
	}
	return sb.String()
}

// mulAdd10 computes significand*10 + digit over the three limbs.
// ok is false if the result no longer fits in 96 bits.
func mulAdd10(lo, mid, hi, digit uint32) (rlo, rmid, rhi uint32, ok bool) {
	carry := uint64(digit)
	p := uint64(lo)*10 + carry
	rlo, carry = uint32(p), p>>32
	p = uint64(mid)*10 + carry
	rmid, carry = uint32(p), p>>32
	p = uint64(hi)*10 + carry
	rhi, carry = uint32(p), p>>32
	return rlo, rmid, rhi, carry == 0
}

// divmod10 divides the three-limb significand by 10, returning the quotient
// limbs and the remainder digit.
func divmod10(lo, mid, hi uint32) (qlo, qmid, qhi, rem uint32) {
	r := uint64(hi)
	qhi = uint32(r / 10)
	r %= 10
	r = r<<32 | uint64(mid)
	qmid = uint32(r / 10)
	r %= 10
	r = r<<32 | uint64(lo)
	qlo = uint32(r / 10)
	rem = uint32(r % 10)
	return
}
