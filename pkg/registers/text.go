// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registers

import (
	"bytes"
	"unicode/utf8"
)

// DecodeText truncates at the first NUL and trims trailing 0xFF padding
func DecodeText(b []byte) string {
	if i := bytes.IndexByte(b, 0x00); i >= 0 {
		b = b[:i]
	}
	b = bytes.TrimRight(b, "\xff")
	return string(b)
}

// EncodeText renders s into a zero-filled field of n bytes.
// At most n-1 bytes of s are kept so the field stays NUL terminated; a cut
// never splits a multi-byte character.
func EncodeText(s string, n int) []byte {
	out := make([]byte, n)
	if n > 0 {
		copy(out[:n-1], truncateText(s, n-1))
	}
	return out
}

// truncateText shortens s to at most limit bytes on a rune boundary
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// TextToRegisters encodes s into the registers backing an n-byte field
func TextToRegisters(s string, n int) []uint16 {
	b := EncodeText(s, n)
	regs := make([]uint16, (n+1)/2)
	for i := range regs {
		hi := b[2*i]
		var lo byte
		if 2*i+1 < len(b) {
			lo = b[2*i+1]
		}
		regs[i] = JoinBytes(hi, lo)
	}
	return regs
}

// TextRegisters returns the number of registers an n-byte field occupies
func TextRegisters(n int) int {
	return (n + 1) / 2
}
