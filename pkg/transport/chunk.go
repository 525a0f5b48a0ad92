// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"time"
)

// writeChunked splits p into pieces of at most size bytes and writes them in
// order, pausing gap between pieces. No pause follows the final piece.
func writeChunked(ctx context.Context, write func([]byte) error, p []byte, size int, gap time.Duration) error {
	if size <= 0 {
		size = len(p)
	}
	for off := 0; off < len(p); off += size {
		end := off + size
		if end > len(p) {
			end = len(p)
		}
		if err := write(p[off:end]); err != nil {
			return err
		}
		if gap <= 0 || end == len(p) {
			continue
		}
		t := time.NewTimer(gap)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return nil
}
