// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f Frame) string {
	fn := FormatFunction(f.Function)
	result := fmt.Sprintf("%s (0x%02X) %s src=0x%02X dst=0x%02X len=%d",
		fn, f.Function, f.Kind, f.Source, f.Target, len(f.Payload))

	switch f.Kind {
	case KindError:
		if de := f.DeviceError(); de != nil {
			result += fmt.Sprintf(" exception=%s", FormatException(de.Code))
		}
	case KindWrite:
		if start, qty, err := f.WriteAck(); err == nil {
			result += fmt.Sprintf(" start=0x%04X qty=%d", start, qty)
		} else if start, values, err := f.WriteRequest(); err == nil {
			result += fmt.Sprintf(" start=0x%04X values=%s", start, formatRegisters(values))
		}
	case KindRead:
		if data, err := f.ReadData(); err == nil {
			if regs, err := SplitRegistersBE(data); err == nil {
				result += " regs=" + formatRegisters(regs)
			}
		} else if start, qty, err := f.ReadRequest(); err == nil {
			result += fmt.Sprintf(" start=0x%04X qty=%d", start, qty)
		}
	}
	return result
}

// FormatFunction returns the human-readable name for a function code
func FormatFunction(fn byte) string {
	name := ""
	switch fn &^ ErrorBit {
	case FuncReadHolding:
		name = "READ_HOLDING"
	case FuncWriteMultiple:
		name = "WRITE_MULTIPLE"
	case FuncReadUUID:
		name = "READ_UUID"
	default:
		name = "UNKNOWN"
	}
	if fn&ErrorBit != 0 {
		name += "_ERROR"
	}
	return name
}

// FormatException returns the human-readable name for an exception code
func FormatException(code byte) string {
	switch code {
	case ExceptionIllegalFunction:
		return "illegal function"
	case ExceptionIllegalAddress:
		return "illegal data address"
	case ExceptionIllegalValue:
		return "illegal data value"
	case ExceptionDeviceFailure:
		return "device failure"
	case ExceptionBusy:
		return "device busy"
	default:
		return "unknown exception"
	}
}

// FormatHex renders bytes as space-separated uppercase hex
func FormatHex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}

func formatRegisters(regs []uint16) string {
	parts := make([]string, len(regs))
	for i, r := range regs {
		parts[i] = fmt.Sprintf("%04X", r)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
