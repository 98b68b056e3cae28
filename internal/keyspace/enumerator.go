package keyspace

import (
	"fmt"
	"iter"
	"math/big"
)

// Size returns |charset|^length, the number of distinct strings of the
// given length.
func Size(c Charset, length int) *big.Int {
	base := big.NewInt(int64(c.Len()))
	return new(big.Int).Exp(base, big.NewInt(int64(length)), nil)
}

// IndexToString encodes idx in base |charset|, most significant character
// first, left padded with the charset's first character to exactly length
// characters.
func IndexToString(idx *big.Int, c Charset, length int) (string, error) {
	if err := ValidateLength(length); err != nil {
		return "", err
	}
	if c.Len() == 0 {
		return "", ErrEmptyCharset
	}
	if idx.Sign() < 0 || idx.Cmp(Size(c, length)) >= 0 {
		return "", fmt.Errorf("%w: %s for length %d over %d characters", ErrIndexOutOfRange, idx, length, c.Len())
	}

	out := make([]rune, length)
	for i, d := range decode(idx, c.Len(), length) {
		out[i] = c.runes[d]
	}
	return string(out), nil
}

// MustIndexToString panics on invalid input. Use it where the index is
// known to come from a validated range.
func MustIndexToString(idx *big.Int, c Charset, length int) string {
	s, err := IndexToString(idx, c, length)
	if err != nil {
		panic(err)
	}
	return s
}

// StringToIndex is the inverse of IndexToString.
func StringToIndex(s string, c Charset) (*big.Int, error) {
	base := big.NewInt(int64(c.Len()))
	idx := new(big.Int)
	digit := new(big.Int)
	for _, r := range s {
		p, ok := c.Position(r)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRune, r)
		}
		idx.Mul(idx, base)
		idx.Add(idx, digit.SetInt64(int64(p)))
	}
	return idx, nil
}

// RangeSequence yields the strings for indices [start, end) in increasing
// index order. The returned sequence holds no state between iterations:
// ranging over it again starts from start.
func RangeSequence(start, end *big.Int, c Charset, length int) (iter.Seq[string], error) {
	if err := ValidateLength(length); err != nil {
		return nil, err
	}
	return rangeSequence(start, end, c, length)
}

// PairSequence walks the combined space of a username of usernameLen
// characters followed by a password of passwordLen characters. The index
// space is |charset|^(usernameLen+passwordLen); the high digits form the
// username.
func PairSequence(start, end *big.Int, c Charset, usernameLen, passwordLen int) (iter.Seq2[string, string], error) {
	if err := ValidateLength(usernameLen); err != nil {
		return nil, err
	}
	if err := ValidateLength(passwordLen); err != nil {
		return nil, err
	}
	seq, err := rangeSequence(start, end, c, usernameLen+passwordLen)
	if err != nil {
		return nil, err
	}
	return func(yield func(string, string) bool) {
		for combined := range seq {
			if !yield(SplitPair(combined, usernameLen)) {
				return
			}
		}
	}, nil
}

func rangeSequence(start, end *big.Int, c Charset, length int) (iter.Seq[string], error) {
	if c.Len() == 0 {
		return nil, ErrEmptyCharset
	}
	if start.Sign() < 0 || start.Cmp(end) > 0 || end.Cmp(Size(c, length)) > 0 {
		return nil, fmt.Errorf("%w: [%s, %s) for length %d", ErrInvalidRange, start, end, length)
	}

	// Copy the bounds so later mutation by the caller cannot leak in.
	lo := new(big.Int).Set(start)
	count := new(big.Int).Sub(end, start)

	return func(yield func(string) bool) {
		if count.Sign() == 0 {
			return
		}
		odo := decode(lo, c.Len(), length)
		buf := make([]rune, length)
		remaining := new(big.Int).Set(count)
		one := big.NewInt(1)

		for remaining.Sign() > 0 {
			for i, d := range odo {
				buf[i] = c.runes[d]
			}
			if !yield(string(buf)) {
				return
			}
			remaining.Sub(remaining, one)
			increment(odo, c.Len())
		}
	}, nil
}

// decode returns the base-n digits of idx, most significant first.
func decode(idx *big.Int, n, length int) []int {
	out := make([]int, length)
	base := big.NewInt(int64(n))
	q := new(big.Int).Set(idx)
	r := new(big.Int)
	for i := length - 1; i >= 0; i-- {
		q.QuoRem(q, base, r)
		out[i] = int(r.Int64())
	}
	return out
}

// increment advances the odometer by one, carrying leftwards. Overflow
// past the most significant digit wraps to zero; callers bound iteration
// by count so the wrap is never observed.
func increment(odo []int, n int) {
	for i := len(odo) - 1; i >= 0; i-- {
		odo[i]++
		if odo[i] < n {
			return
		}
		odo[i] = 0
	}
}

// SplitPair cuts a combined candidate into a username prefix of
// usernameLen characters and the password remainder.
func SplitPair(combined string, usernameLen int) (username, password string) {
	rs := []rune(combined)
	return string(rs[:usernameLen]), string(rs[usernameLen:])
}
