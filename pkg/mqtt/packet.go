// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqtt implements the subset of MQTT 3.1.1 needed to tunnel frames
// through a broker: Connect, Subscribe, Publish at QoS 0, PingReq and
// Disconnect, plus the matching acknowledgements.
package mqtt

import "fmt"

// PacketType is the control packet type carried in the high nibble of the first byte
type PacketType byte

const (
	TypeConnect    PacketType = 1
	TypeConnAck    PacketType = 2
	TypePublish    PacketType = 3
	TypeSubscribe  PacketType = 8
	TypeSubAck     PacketType = 9
	TypePingReq    PacketType = 12
	TypePingResp   PacketType = 13
	TypeDisconnect PacketType = 14
)

// Protocol constants
const (
	ProtocolName  = "MQTT"
	ProtocolLevel = 4 // 3.1.1

	// MaxRemainingLength is the largest length expressible in four bytes
	MaxRemainingLength = 268435455

	flagCleanSession = 0x02
	flagPassword     = 0x40
	flagUsername     = 0x80

	// SubAckFailure is the high bit of a granted QoS code
	SubAckFailure = 0x80
)

func (t PacketType) String() string {
	switch t {
	case TypeConnect:
		return "CONNECT"
	case TypeConnAck:
		return "CONNACK"
	case TypePublish:
		return "PUBLISH"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSubAck:
		return "SUBACK"
	case TypePingReq:
		return "PINGREQ"
	case TypePingResp:
		return "PINGRESP"
	case TypeDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("TYPE_%d", byte(t))
	}
}

// Packet is any decoded control packet
type Packet interface {
	Type() PacketType
}

// Connect opens a session. Credentials are sent when non-empty.
type Connect struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16 // seconds
	Username     string
	Password     string
}

// ConnAck answers Connect
type ConnAck struct {
	SessionPresent bool
	ReturnCode     byte
}

// Accepted reports a zero return code
func (c ConnAck) Accepted() bool {
	return c.ReturnCode == 0
}

// Reason describes the return code
func (c ConnAck) Reason() string {
	switch c.ReturnCode {
	case 0:
		return "accepted"
	case 1:
		return "unacceptable protocol version"
	case 2:
		return "identifier rejected"
	case 3:
		return "server unavailable"
	case 4:
		return "bad user name or password"
	case 5:
		return "not authorized"
	default:
		return fmt.Sprintf("return code %d", c.ReturnCode)
	}
}

// Subscribe requests a single topic
type Subscribe struct {
	PacketID uint16
	Topic    string
	QoS      byte
}

// SubAck answers Subscribe with one granted code per topic
type SubAck struct {
	PacketID uint16
	Granted  []byte
}

// Rejected reports whether any granted code has the failure bit set
func (s SubAck) Rejected() bool {
	for _, g := range s.Granted {
		if g&SubAckFailure != 0 {
			return true
		}
	}
	return false
}

// Publish carries an application payload on a topic
type Publish struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// PingReq keeps the session alive
type PingReq struct{}

// PingResp answers PingReq
type PingResp struct{}

// Disconnect closes the session cleanly
type Disconnect struct{}

// Unknown is any packet type outside the supported subset
type Unknown struct {
	PacketType PacketType
	Flags      byte
	Raw        []byte
}

func (Connect) Type() PacketType    { return TypeConnect }
func (ConnAck) Type() PacketType    { return TypeConnAck }
func (Subscribe) Type() PacketType  { return TypeSubscribe }
func (SubAck) Type() PacketType     { return TypeSubAck }
func (Publish) Type() PacketType    { return TypePublish }
func (PingReq) Type() PacketType    { return TypePingReq }
func (PingResp) Type() PacketType   { return TypePingResp }
func (Disconnect) Type() PacketType { return TypeDisconnect }
func (u Unknown) Type() PacketType  { return u.PacketType }
