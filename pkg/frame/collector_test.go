// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a seeded generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// drain pulls every frame currently available from the collector
func drain(c *Collector) [][]byte {
	var out [][]byte
	for {
		f, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, f.Raw)
	}
}

func frameA(t *testing.T) []byte {
	t.Helper()
	raw, err := EncodeReadResponse(0xF0, 0x01, FuncReadHolding, []byte{0x12, 0x34, 0x00, 0x56})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func frameB() []byte {
	return EncodeWriteResponse(0xF0, 0x01, FuncWriteMultiple, 0x1000, 3)
}

// ============================================================
// Collector Tests
// ============================================================

func TestCollector_SingleFrame(t *testing.T) {
	c := NewCollector()
	c.Push(frameA(t))
	got := drain(c)
	if len(got) != 1 || !bytes.Equal(got[0], frameA(t)) {
		t.Fatalf("frames = % X", got)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after full frame, want 0", c.Len())
	}
}

func TestCollector_Resync(t *testing.T) {
	a, b := frameA(t), frameB()

	var stream []byte
	stream = append(stream, 0x00, 0x13, 0xFD, 0x55)
	stream = append(stream, a...)
	stream = append(stream, 0x22, 0xFD, 0x91, 0xFD, 0x7F)
	stream = append(stream, b...)

	c := NewCollector()
	c.Push(stream)
	got := drain(c)

	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if !bytes.Equal(got[0], a) {
		t.Errorf("first = % X, want A", got[0])
	}
	if !bytes.Equal(got[1], b) {
		t.Errorf("second = % X, want B", got[1])
	}
	if more := drain(c); len(more) != 0 {
		t.Errorf("extra frames: % X", more)
	}
}

func TestCollector_TrailerInsidePayload(t *testing.T) {
	// Payload bytes equal to the trailer must not terminate the frame early.
	raw, _ := EncodeReadResponse(0xF0, 0x01, FuncReadHolding, []byte{0xFD, 0xFD, 0x7F, 0xFD})

	c := NewCollector()
	var rejects int
	c.OnReject = func([]byte, error) { rejects++ }
	c.Push(raw)
	got := drain(c)
	if len(got) != 1 || !bytes.Equal(got[0], raw) {
		t.Fatalf("frames = % X, want % X", got, raw)
	}
	if rejects == 0 {
		t.Error("expected early trailer candidates to be rejected")
	}
}

func TestCollector_EmbeddedValidPrefix(t *testing.T) {
	// Register data carrying the checksum of the frame prefix followed by a
	// trailer byte. The span up to that trailer checksums correctly but its
	// byte count disagrees with its length.
	prefix := []byte{0xF0, 0x01, FuncReadHolding, 0x08, 0x12, 0x34}
	crc := CalculateCRC(prefix)
	data := []byte{0x12, 0x34, byte(crc), byte(crc >> 8), TrailerByte, 0x00, 0x56, 0x78}
	raw, err := EncodeReadResponse(0xF0, 0x01, FuncReadHolding, data)
	if err != nil {
		t.Fatal(err)
	}

	short := raw[:2+len(prefix)+3]
	if _, err := Parse(short); !errors.Is(err, bmserr.ErrIntegrity) {
		t.Fatalf("Parse(short span) err = %v, want ErrIntegrity", err)
	}

	for _, byteWise := range []bool{false, true} {
		c := NewCollector()
		var got [][]byte
		if byteWise {
			for i := range raw {
				c.Push(raw[i : i+1])
				got = append(got, drain(c)...)
			}
		} else {
			c.Push(raw)
			got = drain(c)
		}
		if len(got) != 1 || !bytes.Equal(got[0], raw) {
			t.Fatalf("byteWise=%v: frames = % X, want % X", byteWise, got, raw)
		}
		if c.Len() != 0 {
			t.Errorf("byteWise=%v: %d bytes left in buffer", byteWise, c.Len())
		}
	}
}

func TestCollector_RejectsCountedOnce(t *testing.T) {
	raw, err := EncodeReadResponse(0xF0, 0x01, FuncReadHolding, []byte{0x12, TrailerByte, 0x34, 0x56})
	if err != nil {
		t.Fatal(err)
	}
	// every trailer byte inside the frame closes exactly one candidate
	want := bytes.Count(raw[Overhead-1:len(raw)-1], []byte{TrailerByte})

	for _, step := range []int{1, 2, 3, len(raw)} {
		c := NewCollector()
		rejects := 0
		c.OnReject = func([]byte, error) { rejects++ }
		var got [][]byte
		for i := 0; i < len(raw); i += step {
			c.Push(raw[i:min(i+step, len(raw))])
			got = append(got, drain(c)...)
		}
		if len(got) != 1 {
			t.Fatalf("step %d: got %d frames", step, len(got))
		}
		if rejects != want {
			t.Errorf("step %d: rejects = %d, want %d", step, rejects, want)
		}
	}
}

func TestCollector_SplitDelivery(t *testing.T) {
	a := frameA(t)
	for cut := 1; cut < len(a); cut++ {
		c := NewCollector()
		c.Push(a[:cut])
		if got := drain(c); len(got) != 0 {
			t.Fatalf("cut %d: premature frame % X", cut, got)
		}
		c.Push(a[cut:])
		got := drain(c)
		if len(got) != 1 || !bytes.Equal(got[0], a) {
			t.Fatalf("cut %d: frames = % X", cut, got)
		}
	}
}

func TestCollector_MarkerAcrossDeliveries(t *testing.T) {
	a := frameA(t)
	c := NewCollector()

	// leading garbage ending with the first marker byte
	c.Push([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x7F})
	if got := drain(c); len(got) != 0 {
		t.Fatalf("unexpected frame % X", got)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want the final byte retained", c.Len())
	}
	c.Push(a[1:])
	got := drain(c)
	if len(got) != 1 || !bytes.Equal(got[0], a) {
		t.Fatalf("frames = % X", got)
	}
}

func TestCollector_MultipleFramesPerDelivery(t *testing.T) {
	a, b := frameA(t), frameB()
	c := NewCollector()
	c.Push(append(append(append([]byte(nil), a...), b...), a...))
	if got := drain(c); len(got) != 3 {
		t.Fatalf("got %d frames, want 3", len(got))
	}
}

func TestCollector_CorruptFrameSkipped(t *testing.T) {
	a, b := frameA(t), frameB()
	corrupt := append([]byte(nil), a...)
	corrupt[7] ^= 0xFF

	c := NewCollector()
	c.Push(corrupt)
	c.Push(b)
	got := drain(c)
	if len(got) != 1 || !bytes.Equal(got[0], b) {
		t.Fatalf("frames = % X, want only B", got)
	}
}

func TestCollector_BufferBound(t *testing.T) {
	c := NewCollector()
	c.SetMaxBuffer(64)

	// a start marker that never completes, followed by filler
	c.Push([]byte{0x7F, 0x55, 0x01})
	c.Push(bytes.Repeat([]byte{0x00}, 100))
	drain(c)
	if c.Len() > 64 {
		t.Errorf("Len = %d, want bounded by 64", c.Len())
	}

	b := frameB()
	c.Push(b)
	got := drain(c)
	if len(got) != 1 || !bytes.Equal(got[0], b) {
		t.Fatalf("frames = % X after overflow", got)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.Push(frameA(t)[:5])
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Reset", c.Len())
	}
}

// ============================================================
// Collector Fuzz Tests
// ============================================================

// randomGarbage returns bytes free of start markers, with frequent trailer bytes
func randomGarbage(rng *rand.Rand) []byte {
	n := rng.Intn(12)
	out := make([]byte, n)
	for i := range out {
		if rng.Intn(3) == 0 {
			out[i] = TrailerByte
			continue
		}
		v := byte(rng.Intn(256))
		if v == StartByte1 {
			v = 0x00
		}
		out[i] = v
	}
	return out
}

// randomFrame returns a well-formed frame of a random kind
func randomFrame(rng *rand.Rand) []byte {
	target, source := byte(rng.Intn(256)), byte(rng.Intn(256))
	switch rng.Intn(5) {
	case 0:
		return BuildReadFrame(source, target, FuncReadHolding, uint16(rng.Intn(0x10000)), uint16(1+rng.Intn(120)))
	case 1:
		values := make([]uint16, 1+rng.Intn(10))
		for i := range values {
			values[i] = uint16(rng.Intn(0x10000))
		}
		raw, _ := BuildWriteRequest(source, target, FuncWriteMultiple, uint16(rng.Intn(0x10000)), values)
		return raw
	case 2:
		return EncodeWriteResponse(target, source, FuncWriteMultiple, uint16(rng.Intn(0x10000)), uint16(1+rng.Intn(120)))
	case 3:
		return EncodeErrorResponse(target, source, FuncReadHolding, byte(rng.Intn(256)))
	default:
		data := make([]byte, 2*rng.Intn(12))
		rng.Read(data)
		raw, _ := EncodeReadResponse(target, source, FuncReadHolding, data)
		return raw
	}
}

func TestFuzzCollector_GarbageAndSplits(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		var want [][]byte
		var stream []byte
		for i := 0; i < 1+rng.Intn(4); i++ {
			stream = append(stream, randomGarbage(rng)...)
			f := randomFrame(rng)
			want = append(want, f)
			stream = append(stream, f...)
		}

		c := NewCollector()
		var got [][]byte
		for len(stream) > 0 {
			n := 1 + rng.Intn(len(stream))
			c.Push(stream[:n])
			stream = stream[n:]
			got = append(got, drain(c)...)
		}

		if len(got) != len(want) {
			t.Fatalf("round %d: got %d frames, want %d", round, len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Fatalf("round %d frame %d: % X, want % X", round, i, got[i], want[i])
			}
		}
	}
}
