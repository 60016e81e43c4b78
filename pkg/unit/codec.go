package unit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMalformedLiteral = errors.New("malformed literal")
	ErrOutOfDomain      = errors.New("value out of encodable domain")
)

// LiteralError reports a value token that could not be decoded.
type LiteralError struct {
	Text   string
	Reason string
}

func (e *LiteralError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrMalformedLiteral, e.Text, e.Reason)
}

func (e *LiteralError) Unwrap() error { return ErrMalformedLiteral }

// Tier is one magnitude suffix and its power of ten.
type Tier struct {
	Suffix   string
	Exponent int
}

// Tiers in ascending order. Encode picks the last tier whose bound is <= value.
var Tiers = []Tier{
	{"f", -15}, // femto
	{"p", -12}, // pico
	{"n", -9},  // nano
	{"u", -6},  // micro
	{"m", -3},  // milli
	{"", 0},    // unit
	{"K", 3},   // kilo
	{"Meg", 6}, // mega
	{"G", 9},   // giga
	{"T", 12},  // tera
}

// maxExponent is far beyond float64 range, so clamping to it keeps overflow
// and underflow results unchanged.
const maxExponent = 1 << 16

var scaleLetters = map[byte]int{
	'f': -15,
	'p': -12,
	'n': -9,
	'u': -6,
	'm': -3,
	'k': 3,
	'g': 9,
	't': 12,
}

// Decode converts a netlist value token to a float. 1k -> 1000, 1.5Meg -> 1.5e6, 12e-3 -> 0.012
func Decode(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, &LiteralError{Text: text, Reason: "empty"}
	}
	// strconv accepts Go digit separators, SPICE does not.
	if strings.ContainsRune(s, '_') {
		return 0, &LiteralError{Text: text, Reason: "digit separator"}
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, &LiteralError{Text: text, Reason: "not a finite number"}
		}
		return v, nil
	}

	coef, exp, rest, ok := splitNumber(s)
	if !ok {
		return 0, &LiteralError{Text: text, Reason: "no numeric prefix"}
	}

	scale, err := scaleOf(strings.ToLower(rest))
	if err != nil {
		return 0, &LiteralError{Text: text, Reason: err.Error()}
	}

	// One correctly rounded parse: "20n" is read as 20e-9, not 20*1e-9.
	v, err := strconv.ParseFloat(coef+"e"+strconv.Itoa(exp+scale), 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, &LiteralError{Text: text, Reason: "out of range"}
	}
	return v, nil
}

// splitNumber scans [+-]digits[.digits][e[+-]digits] and returns the
// coefficient text, the decimal exponent and the unconsumed remainder.
func splitNumber(s string) (coef string, exp int, rest string, ok bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return "", 0, "", false
	}
	coef = s[:i]

	// Exponent only when 'e' is followed by a (signed) digit
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			e, err := strconv.Atoi(s[i+1 : k])
			if err != nil && !errors.Is(err, strconv.ErrRange) {
				return "", 0, "", false
			}
			// Atoi saturates on overflow; clamp so adding a suffix scale cannot wrap.
			exp = max(-maxExponent, min(e, maxExponent))
			i = k
		}
	}

	return coef, exp, s[i:], true
}

// scaleOf resolves the lower-cased text after the number. "meg" must win over "m".
func scaleOf(rest string) (int, error) {
	if rest == "" {
		return 0, nil
	}

	scale, tail := 0, rest
	switch {
	case strings.HasPrefix(rest, "meg"):
		scale, tail = 6, rest[3:]
	default:
		if s, ok := scaleLetters[rest[0]]; ok {
			scale, tail = s, rest[1:]
		} else if !isLetter(rest[0]) {
			return 0, fmt.Errorf("unexpected %q after number", rest)
		}
	}

	// Whatever follows the scale is a unit name (F, ohm, H, V, s)
	for i := 0; i < len(tail); i++ {
		if !isLetter(tail[i]) {
			return 0, fmt.Errorf("unexpected %q after suffix", tail)
		}
	}
	return scale, nil
}

// Encode formats a non-negative value with the largest suffix tier whose bound
// does not exceed it. 27000 -> 27K, 1e-7 -> 100n, 1234.567 -> 1.234567K
func Encode(v float64) (string, error) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
		return "", fmt.Errorf("%w: %v", ErrOutOfDomain, v)
	case v == 0:
		return "0", nil
	}

	digits, exp10 := decimalDigits(v)
	tier := TierFor(exp10)
	return placePoint(digits, exp10-tier.Exponent+1) + tier.Suffix, nil
}

// TierFor returns the tier used for a value whose leading digit has the given
// power of ten. Below femto stays femto, above tera stays tera.
func TierFor(exp10 int) Tier {
	e := floorDiv(exp10, 3) * 3
	first, last := Tiers[0], Tiers[len(Tiers)-1]
	if e < first.Exponent {
		return first
	}
	if e > last.Exponent {
		return last
	}
	return Tiers[(e-first.Exponent)/3]
}

// decimalDigits returns the shortest round-trip digits of v and the power of
// ten of the first digit. 1234.567 -> "1234567", 3
func decimalDigits(v float64) (string, int) {
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, expText, _ := strings.Cut(s, "e")
	exp, _ := strconv.Atoi(expText)
	return strings.Replace(mant, ".", "", 1), exp
}

func placePoint(digits string, intLen int) string {
	switch {
	case intLen <= 0:
		return "0." + strings.Repeat("0", -intLen) + digits
	case intLen >= len(digits):
		return digits + strings.Repeat("0", intLen-len(digits))
	default:
		return digits[:intLen] + "." + digits[intLen:]
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
