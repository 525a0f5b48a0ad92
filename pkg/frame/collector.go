// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import "bytes"

// DefaultMaxBuffer bounds the reassembly buffer of a Collector
const DefaultMaxBuffer = 4096

var startMarker = []byte{StartByte1, StartByte2}

// Collector reassembles frames from a boundary-less byte stream.
//
// Bytes before the first start marker are discarded, except for the final
// byte which may be the first half of a marker split across deliveries. Every
// trailer byte closes one candidate span per start marker before it. A
// candidate that fails validation is skipped and scanning continues with the
// next trailer, because a payload or checksum byte may coincidentally equal
// the trailer value. Each candidate is checked once: trailers already scanned
// are not revisited when more bytes arrive.
//
// A Collector is not safe for concurrent use.
type Collector struct {
	buf []byte
	max int

	// trailer positions below scanned were tried against every marker before them
	scanned int

	// OnReject, when set, observes every candidate span that failed validation.
	OnReject func(candidate []byte, err error)
}

// NewCollector creates a collector with the default buffer bound
func NewCollector() *Collector {
	return &Collector{max: DefaultMaxBuffer}
}

// SetMaxBuffer changes the buffer bound; values below the frame overhead are ignored.
func (c *Collector) SetMaxBuffer(n int) {
	if n >= Overhead {
		c.max = n
	}
}

// Push appends inbound bytes to the reassembly buffer
func (c *Collector) Push(p []byte) {
	c.buf = append(c.buf, p...)
}

// Len returns the number of buffered bytes
func (c *Collector) Len() int {
	return len(c.buf)
}

// Reset discards all buffered bytes
func (c *Collector) Reset() {
	c.buf = c.buf[:0]
	c.scanned = 0
}

// Next extracts the next validated frame, if the buffer holds one.
// The returned frame owns its bytes. Call Next repeatedly after each Push,
// since one delivery may carry several frames.
//
// Frames are yielded in the order they complete. When two candidates end at
// the same trailer, the one from the earlier marker wins.
func (c *Collector) Next() (Frame, bool) {
	for {
		if len(c.buf) < MinFrameLen {
			return Frame{}, false
		}

		start := bytes.Index(c.buf, startMarker)
		if start < 0 {
			c.discard(len(c.buf) - 1)
			return Frame{}, false
		}
		c.discard(start)

		if f, end, ok := c.scan(); ok {
			c.discard(end)
			return f, true
		}

		if c.max > 0 && len(c.buf) > c.max {
			// The first marker can never complete; drop it and rescan.
			c.discard(2)
			continue
		}
		return Frame{}, false
	}
}

// scan tries each trailer not scanned yet against every marker before it.
// On success it returns the frame and the offset just past its trailer.
func (c *Collector) scan() (Frame, int, bool) {
	for j := max(c.scanned, Overhead-1); j < len(c.buf); j++ {
		c.scanned = j + 1
		if c.buf[j] != TrailerByte {
			continue
		}
		for m := 0; j-m+1 >= Overhead; m++ {
			if c.buf[m] != StartByte1 || c.buf[m+1] != StartByte2 {
				continue
			}
			candidate := c.buf[m : j+1]
			if _, err := Parse(candidate); err != nil {
				if c.OnReject != nil {
					c.OnReject(append([]byte(nil), candidate...), err)
				}
				continue
			}
			f, _ := Parse(append([]byte(nil), candidate...))
			return f, j + 1, true
		}
	}
	return Frame{}, 0, false
}

// discard drops the first n buffered bytes
func (c *Collector) discard(n int) {
	if n <= 0 {
		return
	}
	if n >= len(c.buf) {
		c.buf = c.buf[:0]
		c.scanned = 0
		return
	}
	c.buf = append(c.buf[:0], c.buf[n:]...)
	c.scanned = max(c.scanned-n, 0)
}
