// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registers

import "sort"

// Range is a contiguous register window
type Range struct {
	Start    uint16
	Quantity int
}

// End returns the address one past the last register
func (r Range) End() int {
	return int(r.Start) + r.Quantity
}

// ChunkRanges splits qty registers from start into successive windows of at
// most max registers, in address order.
func ChunkRanges(start uint16, qty, max int) []Range {
	if max <= 0 {
		max = qty
	}
	var out []Range
	addr := int(start)
	for remaining := qty; remaining > 0; {
		n := remaining
		if n > max {
			n = max
		}
		out = append(out, Range{Start: uint16(addr), Quantity: n})
		addr += n
		remaining -= n
	}
	return out
}

// GroupContiguous merges addresses into maximal contiguous runs in ascending order.
// Duplicates are ignored.
func GroupContiguous(addrs []uint16) []Range {
	if len(addrs) == 0 {
		return nil
	}
	sorted := append([]uint16(nil), addrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var out []Range
	cur := Range{Start: sorted[0], Quantity: 1}
	for _, a := range sorted[1:] {
		switch {
		case int(a) < cur.End():
			// duplicate
		case int(a) == cur.End():
			cur.Quantity++
		default:
			out = append(out, cur)
			cur = Range{Start: a, Quantity: 1}
		}
	}
	return append(out, cur)
}
