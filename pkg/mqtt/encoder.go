// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"encoding/binary"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// EncodeRemainingLength encodes n as base-128 digits with continuation bits
func EncodeRemainingLength(n int) ([]byte, error) {
	if n < 0 || n > MaxRemainingLength {
		return nil, bmserr.Value("remaining length %d out of range", n)
	}
	out := make([]byte, 0, 4)
	for {
		digit := byte(n % 128)
		n /= 128
		if n > 0 {
			digit |= 0x80
		}
		out = append(out, digit)
		if n == 0 {
			return out, nil
		}
	}
}

// EncodeString prefixes s with its 16-bit big-endian byte count
func EncodeString(s string) ([]byte, error) {
	if len(s) > 0xFFFF {
		return nil, bmserr.Value("string of %d bytes too long", len(s))
	}
	out := make([]byte, 2, 2+len(s))
	binary.BigEndian.PutUint16(out, uint16(len(s)))
	return append(out, s...), nil
}

// packet assembles a fixed header and body
func packet(first byte, body []byte) ([]byte, error) {
	rl, err := EncodeRemainingLength(len(body))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(rl)+len(body))
	out = append(out, first)
	out = append(out, rl...)
	return append(out, body...), nil
}

// appendStrings encodes each string in order
func appendStrings(dst []byte, ss ...string) ([]byte, error) {
	for _, s := range ss {
		b, err := EncodeString(s)
		if err != nil {
			return nil, err
		}
		dst = append(dst, b...)
	}
	return dst, nil
}

// Encode serialises the Connect packet
func (c Connect) Encode() ([]byte, error) {
	if c.ClientID == "" {
		return nil, bmserr.Configuration("mqtt client id is required")
	}
	if c.Password != "" && c.Username == "" {
		return nil, bmserr.Value("mqtt password requires a user name")
	}

	var flags byte
	if c.CleanSession {
		flags |= flagCleanSession
	}
	if c.Username != "" {
		flags |= flagUsername
	}
	if c.Password != "" {
		flags |= flagPassword
	}

	body, err := appendStrings(nil, ProtocolName)
	if err != nil {
		return nil, err
	}
	body = append(body, ProtocolLevel, flags, byte(c.KeepAlive>>8), byte(c.KeepAlive))

	payload := []string{c.ClientID}
	if c.Username != "" {
		payload = append(payload, c.Username)
	}
	if c.Password != "" {
		payload = append(payload, c.Password)
	}
	if body, err = appendStrings(body, payload...); err != nil {
		return nil, err
	}
	return packet(byte(TypeConnect)<<4, body)
}

// Encode serialises the Subscribe packet. Only QoS 0 may be requested.
func (s Subscribe) Encode() ([]byte, error) {
	if s.PacketID == 0 {
		return nil, bmserr.Value("subscribe packet id must be non-zero")
	}
	if s.Topic == "" {
		return nil, bmserr.Configuration("subscribe topic is required")
	}
	if s.QoS != 0 {
		return nil, bmserr.Value("QoS %d not supported", s.QoS)
	}
	body := []byte{byte(s.PacketID >> 8), byte(s.PacketID)}
	body, err := appendStrings(body, s.Topic)
	if err != nil {
		return nil, err
	}
	body = append(body, s.QoS)
	// SUBSCRIBE carries reserved flags 0b0010
	return packet(byte(TypeSubscribe)<<4|0x02, body)
}

// Encode serialises the Publish packet. Only QoS 0 is supported.
func (p Publish) Encode() ([]byte, error) {
	if p.Topic == "" {
		return nil, bmserr.Configuration("publish topic is required")
	}
	if p.QoS != 0 {
		return nil, bmserr.Value("QoS %d not supported", p.QoS)
	}
	body, err := appendStrings(nil, p.Topic)
	if err != nil {
		return nil, err
	}
	body = append(body, p.Payload...)

	first := byte(TypePublish) << 4
	if p.Retain {
		first |= 0x01
	}
	return packet(first, body)
}

// Encode serialises the ConnAck packet
func (c ConnAck) Encode() ([]byte, error) {
	var ack byte
	if c.SessionPresent {
		ack = 0x01
	}
	return packet(byte(TypeConnAck)<<4, []byte{ack, c.ReturnCode})
}

// Encode serialises the SubAck packet
func (s SubAck) Encode() ([]byte, error) {
	body := []byte{byte(s.PacketID >> 8), byte(s.PacketID)}
	return packet(byte(TypeSubAck)<<4, append(body, s.Granted...))
}

// Encode serialises the PingReq packet
func (PingReq) Encode() ([]byte, error) {
	return []byte{byte(TypePingReq) << 4, 0x00}, nil
}

// Encode serialises the PingResp packet
func (PingResp) Encode() ([]byte, error) {
	return []byte{byte(TypePingResp) << 4, 0x00}, nil
}

// Encode serialises the Disconnect packet
func (Disconnect) Encode() ([]byte, error) {
	return []byte{byte(TypeDisconnect) << 4, 0x00}, nil
}
