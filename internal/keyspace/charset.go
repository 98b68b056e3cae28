// Package keyspace maps dense integer indices onto fixed-length strings over
// a character set and splits the resulting space into worker shards.
package keyspace

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLength is the longest candidate string the enumerator will generate.
const MaxLength = 20

const (
	asciiLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	punctuation  = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// DefaultAlphabet is letters, then digits, then punctuation.
const DefaultAlphabet = asciiLetters + digits + punctuation

var (
	ErrEmptyCharset    = errors.New("keyspace: charset is empty after filtering")
	ErrInvalidLength   = errors.New("keyspace: invalid candidate length")
	ErrIndexOutOfRange = errors.New("keyspace: index out of range")
	ErrInvalidRange    = errors.New("keyspace: invalid range bounds")
	ErrUnknownRune     = errors.New("keyspace: character not in charset")
)

// Charset is an ordered sequence of unique characters. The zero value is
// empty and unusable; build one with NewCharset.
type Charset struct {
	runes []rune
	pos   map[rune]int
}

// NewCharset builds a Charset from base, keeping only the characters in
// whitelist (when non-empty) and then dropping those in blacklist.
// Duplicate characters in base keep their first position.
func NewCharset(base, whitelist, blacklist string) (Charset, error) {
	if base == "" {
		base = DefaultAlphabet
	}

	c := Charset{pos: make(map[rune]int)}
	for _, r := range base {
		if _, dup := c.pos[r]; dup {
			continue
		}
		if whitelist != "" && !strings.ContainsRune(whitelist, r) {
			continue
		}
		if blacklist != "" && strings.ContainsRune(blacklist, r) {
			continue
		}
		c.pos[r] = len(c.runes)
		c.runes = append(c.runes, r)
	}

	if len(c.runes) == 0 {
		return Charset{}, ErrEmptyCharset
	}
	return c, nil
}

// MustCharset is NewCharset for literals known to be valid.
func MustCharset(chars string) Charset {
	c, err := NewCharset(chars, "", "")
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of characters.
func (c Charset) Len() int { return len(c.runes) }

// At returns the character at position i.
func (c Charset) At(i int) rune { return c.runes[i] }

// Position reports where r sits in the charset.
func (c Charset) Position(r rune) (int, bool) {
	i, ok := c.pos[r]
	return i, ok
}

func (c Charset) String() string { return string(c.runes) }

// ValidateLength checks that length is within [1, MaxLength].
func ValidateLength(length int) error {
	if length < 1 || length > MaxLength {
		return fmt.Errorf("%w: %d (must be between 1 and %d)", ErrInvalidLength, length, MaxLength)
	}
	return nil
}
