// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	_ encoding.TextUnmarshaler = (*Rat[int32])(nil)
	_ encoding.TextMarshaler   = Rat[int32]{}
)

// Rat is a TIFF rational number.
// The numerator and denominator are kept as stored in the file, i.e. not reduced,
// and the denominator may be zero.
type Rat[T int32 | uint32] struct {
	num T
	den T
}

// NewRat returns a new Rat with the given numerator and denominator.
func NewRat[T int32 | uint32](num, den T) (Rat[T], error) {
	if den == 0 {
		return Rat[T]{}, errors.New("denominator must be non-zero")
	}
	return Rat[T]{num: num, den: den}, nil
}

// Num returns the numerator of the rational number.
func (r Rat[T]) Num() T {
	return r.num
}

// Den returns the denominator of the rational number.
func (r Rat[T]) Den() T {
	return r.den
}

// Float64 returns the float64 representation of the rational number.
// A zero denominator gives +Inf, -Inf or NaN.
func (r Rat[T]) Float64() float64 {
	if r.den == 0 {
		switch {
		case r.num > 0:
			return math.Inf(1)
		case r.num < 0:
			return math.Inf(-1)
		default:
			return math.NaN()
		}
	}
	return float64(r.num) / float64(r.den)
}

// String returns the string representation of the rational number, "num/den".
func (r Rat[T]) String() string {
	return fmt.Sprintf("%d/%d", r.num, r.den)
}

func (r *Rat[T]) UnmarshalText(text []byte) error {
	s := string(text)
	if !strings.Contains(s, "/") {
		num, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse %q as a rational number: %w", s, err)
		}
		r.num = T(num)
		r.den = 1
		return nil
	}
	if _, err := fmt.Sscanf(s, "%d/%d", &r.num, &r.den); err != nil {
		return fmt.Errorf("failed to parse %q as a rational number: %w", s, err)
	}
	return nil
}

func (r Rat[T]) MarshalText() (text []byte, err error) {
	return []byte(r.String()), nil
}

func printableString(s string) string {
	ss := strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) {
			return r
		}
		return -1
	}, s)

	return strings.TrimSpace(ss)
}

func firstUpper(s string) string {
	if s == "" {
		return ""
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

// trimTrailingNulls trims trailing NUL bytes and whitespace.
func trimTrailingNulls(b []byte) string {
	return strings.TrimRightFunc(string(b), func(r rune) bool {
		return r == 0 || unicode.IsSpace(r)
	})
}
