// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"encoding/binary"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// DecodeRemainingLength decodes a length prefix starting at b[0].
// It returns n == 0 when b ends before the final digit.
func DecodeRemainingLength(b []byte) (value, n int, err error) {
	multiplier := 1
	for i := 0; ; i++ {
		if i >= 4 {
			return 0, 0, bmserr.Protocol("malformed remaining length")
		}
		if i >= len(b) {
			return 0, 0, nil
		}
		digit := b[i]
		value += int(digit&0x7F) * multiplier
		multiplier *= 128
		if digit&0x80 == 0 {
			return value, i + 1, nil
		}
	}
}

// DecodeString reads a length-prefixed string from the start of b
func DecodeString(b []byte) (s string, n int, err error) {
	if len(b) < 2 {
		return "", 0, bmserr.Protocol("string length truncated")
	}
	l := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+l {
		return "", 0, bmserr.Protocol("string of %d bytes truncated at %d", l, len(b)-2)
	}
	return string(b[2 : 2+l]), 2 + l, nil
}

// Parse decodes one complete control packet
func Parse(b []byte) (Packet, error) {
	if len(b) < 2 {
		return nil, bmserr.Protocol("packet too short: %d bytes", len(b))
	}
	typ := PacketType(b[0] >> 4)
	flags := b[0] & 0x0F

	rl, n, err := DecodeRemainingLength(b[1:])
	if err != nil {
		return nil, err
	}
	if n == 0 || len(b) != 1+n+rl {
		return nil, bmserr.Protocol("%s length mismatch: declared %d, have %d", typ, rl, len(b)-1-n)
	}
	body := b[1+n:]

	switch typ {
	case TypeConnAck:
		if len(body) < 2 {
			return nil, bmserr.Protocol("bad CONNACK")
		}
		return ConnAck{SessionPresent: body[0]&0x01 != 0, ReturnCode: body[1]}, nil

	case TypeSubAck:
		if len(body) < 3 {
			return nil, bmserr.Protocol("bad SUBACK")
		}
		return SubAck{
			PacketID: binary.BigEndian.Uint16(body),
			Granted:  append([]byte(nil), body[2:]...),
		}, nil

	case TypePingResp:
		return PingResp{}, nil

	case TypePingReq:
		return PingReq{}, nil

	case TypeDisconnect:
		return Disconnect{}, nil

	case TypePublish:
		qos := (flags >> 1) & 0x03
		if qos != 0 {
			return nil, bmserr.Protocol("inbound PUBLISH with QoS %d not supported", qos)
		}
		topic, used, err := DecodeString(body)
		if err != nil {
			return nil, err
		}
		return Publish{
			Topic:   topic,
			Payload: append([]byte(nil), body[used:]...),
			Retain:  flags&0x01 != 0,
		}, nil

	case TypeSubscribe:
		return parseSubscribe(body)

	case TypeConnect:
		return parseConnect(body)
	}

	return Unknown{PacketType: typ, Flags: flags, Raw: append([]byte(nil), b...)}, nil
}

func parseSubscribe(body []byte) (Packet, error) {
	if len(body) < 2 {
		return nil, bmserr.Protocol("bad SUBSCRIBE")
	}
	s := Subscribe{PacketID: binary.BigEndian.Uint16(body)}
	topic, used, err := DecodeString(body[2:])
	if err != nil {
		return nil, err
	}
	rest := body[2+used:]
	if len(rest) < 1 {
		return nil, bmserr.Protocol("SUBSCRIBE without requested QoS")
	}
	s.Topic = topic
	s.QoS = rest[0] & 0x03
	return s, nil
}

func parseConnect(body []byte) (Packet, error) {
	name, used, err := DecodeString(body)
	if err != nil {
		return nil, err
	}
	if name != ProtocolName {
		return nil, bmserr.Protocol("unexpected protocol name %q", name)
	}
	body = body[used:]
	if len(body) < 4 {
		return nil, bmserr.Protocol("CONNECT variable header truncated")
	}
	if body[0] != ProtocolLevel {
		return nil, bmserr.Protocol("unsupported protocol level %d", body[0])
	}
	flags := body[1]
	c := Connect{
		CleanSession: flags&flagCleanSession != 0,
		KeepAlive:    binary.BigEndian.Uint16(body[2:4]),
	}
	body = body[4:]

	if c.ClientID, used, err = DecodeString(body); err != nil {
		return nil, err
	}
	body = body[used:]
	if flags&flagUsername != 0 {
		if c.Username, used, err = DecodeString(body); err != nil {
			return nil, err
		}
		body = body[used:]
	}
	if flags&flagPassword != 0 {
		if c.Password, _, err = DecodeString(body); err != nil {
			return nil, err
		}
	}
	return c, nil
}
