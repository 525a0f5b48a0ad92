// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks request outcomes and link traffic.
// Counters are updated atomically by the engine worker and may be read from
// any goroutine.
type Statistics struct {
	mu        sync.Mutex
	startTime time.Time

	// Counters
	Requests       atomic.Uint64
	Responses      atomic.Uint64
	Timeouts       atomic.Uint64
	DeviceErrors   atomic.Uint64
	SendFailures   atomic.Uint64
	Frames         atomic.Uint64 // validated frames reassembled
	Unmatched      atomic.Uint64
	IntegrityDrops atomic.Uint64 // rejected candidate spans
	BytesIn        atomic.Uint64
	BytesOut       atomic.Uint64

	rttTotal atomic.Int64 // nanoseconds
	rttMax   atomic.Int64
}

// Snapshot is a point-in-time copy of Statistics with derived rates
type Snapshot struct {
	Elapsed        time.Duration
	Requests       uint64
	Responses      uint64
	Timeouts       uint64
	DeviceErrors   uint64
	SendFailures   uint64
	Frames         uint64
	Unmatched      uint64
	IntegrityDrops uint64
	BytesIn        uint64
	BytesOut       uint64
	AvgRTT         time.Duration
	MaxRTT         time.Duration

	// Rates (calculated)
	RequestRate float64 // requests/sec
	ErrorRate   float64 // failed requests/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) observeRTT(d time.Duration) {
	s.rttTotal.Add(int64(d))
	for {
		cur := s.rttMax.Load()
		if int64(d) <= cur || s.rttMax.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// Snapshot copies the counters and calculates rates
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	start := s.startTime
	s.mu.Unlock()

	snap := Snapshot{
		Elapsed:        time.Since(start),
		Requests:       s.Requests.Load(),
		Responses:      s.Responses.Load(),
		Timeouts:       s.Timeouts.Load(),
		DeviceErrors:   s.DeviceErrors.Load(),
		SendFailures:   s.SendFailures.Load(),
		Frames:         s.Frames.Load(),
		Unmatched:      s.Unmatched.Load(),
		IntegrityDrops: s.IntegrityDrops.Load(),
		BytesIn:        s.BytesIn.Load(),
		BytesOut:       s.BytesOut.Load(),
		MaxRTT:         time.Duration(s.rttMax.Load()),
	}
	if snap.Responses > 0 {
		snap.AvgRTT = time.Duration(s.rttTotal.Load() / int64(snap.Responses))
	}
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.RequestRate = float64(snap.Requests) / secs
		snap.ErrorRate = float64(snap.Timeouts+snap.SendFailures+snap.DeviceErrors) / secs
	}
	return snap
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	return s.Snapshot().String()
}

// String returns a formatted statistics summary
func (snap Snapshot) String() string {
	var okPercent, timeoutPercent float64
	if snap.Requests > 0 {
		okPercent = float64(snap.Responses-snap.DeviceErrors) * 100.0 / float64(snap.Requests)
		timeoutPercent = float64(snap.Timeouts) * 100.0 / float64(snap.Requests)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", snap.Elapsed.Seconds())
	result += fmt.Sprintf("Requests:        %8d\n", snap.Requests)
	result += fmt.Sprintf("Responses OK:    %8d (%.1f%%)\n", snap.Responses-snap.DeviceErrors, okPercent)

	if snap.DeviceErrors > 0 {
		result += fmt.Sprintf("Device Errors:   %8d\n", snap.DeviceErrors)
	}
	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", snap.Timeouts, timeoutPercent)
	}
	if snap.SendFailures > 0 {
		result += fmt.Sprintf("Send Failures:   %8d\n", snap.SendFailures)
	}
	if snap.Unmatched > 0 {
		result += fmt.Sprintf("Unmatched:       %8d\n", snap.Unmatched)
	}
	if snap.IntegrityDrops > 0 {
		result += fmt.Sprintf("Integrity Drops: %8d\n", snap.IntegrityDrops)
	}

	result += fmt.Sprintf("Bytes In/Out:    %8d / %d\n", snap.BytesIn, snap.BytesOut)
	result += fmt.Sprintf("RTT avg/max:     %8s / %s\n", snap.AvgRTT.Round(time.Millisecond), snap.MaxRTT.Round(time.Millisecond))
	result += fmt.Sprintf("Request Rate:    %8.1f req/sec\n", snap.RequestRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	for _, c := range []*atomic.Uint64{
		&s.Requests, &s.Responses, &s.Timeouts, &s.DeviceErrors, &s.SendFailures,
		&s.Frames, &s.Unmatched, &s.IntegrityDrops, &s.BytesIn, &s.BytesOut,
	} {
		c.Store(0)
	}
	s.rttTotal.Store(0)
	s.rttMax.Store(0)
}
