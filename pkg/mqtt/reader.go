// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

// Reader accumulates a byte stream and splits it into whole packets
type Reader struct {
	buf []byte
}

// Push appends inbound bytes
func (r *Reader) Push(p []byte) {
	r.buf = append(r.buf, p...)
}

// Len returns the number of buffered bytes
func (r *Reader) Len() int {
	return len(r.buf)
}

// Next returns the next complete packet once its declared length is buffered.
// A malformed length prefix is reported as an error; the stream cannot be
// resynchronised after that.
func (r *Reader) Next() ([]byte, bool, error) {
	if len(r.buf) < 2 {
		return nil, false, nil
	}
	rl, n, err := DecodeRemainingLength(r.buf[1:])
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	total := 1 + n + rl
	if len(r.buf) < total {
		return nil, false, nil
	}
	pkt := append([]byte(nil), r.buf[:total]...)
	r.buf = append(r.buf[:0], r.buf[total:]...)
	return pkt, true, nil
}
