// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/mqtt"
)

// Broker tunnel defaults
const (
	BrokerDefaultTimeout      = 2000 * time.Millisecond
	BrokerDefaultInterval     = 50 * time.Millisecond
	BrokerDefaultKeepAlive    = 30 * time.Second
	BrokerDefaultSetupTimeout = 5 * time.Second

	// minPingInterval floors the keepalive ping period
	minPingInterval = 5 * time.Second
)

// BrokerConfig configures an MQTT-over-WebSocket tunnel
type BrokerConfig struct {
	Options

	URL      string
	ClientID string
	Username string
	Password string

	// PubTopic carries requests to the device, SubTopic carries its replies.
	PubTopic string
	SubTopic string

	KeepAlive          time.Duration
	SetupTimeout       time.Duration
	InsecureSkipVerify bool
}

func (c *BrokerConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = BrokerDefaultTimeout
	}
	if c.MinInterval == 0 {
		c.MinInterval = BrokerDefaultInterval
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = BrokerDefaultKeepAlive
	}
	if c.SetupTimeout <= 0 {
		c.SetupTimeout = BrokerDefaultSetupTimeout
	}
}

// Validate reports the first missing or malformed field
func (c *BrokerConfig) Validate() error {
	switch {
	case c.URL == "":
		return bmserr.Configuration("broker url is required")
	case c.ClientID == "":
		return bmserr.Configuration("broker client id is required")
	case c.PubTopic == "":
		return bmserr.Configuration("publish topic is required")
	case c.SubTopic == "":
		return bmserr.Configuration("subscribe topic is required")
	case c.Password != "" && c.Username == "":
		return bmserr.Configuration("broker password requires a user name")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return bmserr.Configuration("invalid broker url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return bmserr.Configuration("unsupported url scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	if c.KeepAlive > 0xFFFF*time.Second {
		return bmserr.Configuration("keepalive %s exceeds 65535s", c.KeepAlive)
	}
	return nil
}

// pingInterval is half the keepalive, never below minPingInterval
func (c *BrokerConfig) pingInterval() time.Duration {
	if c.KeepAlive <= 0 {
		return 0
	}
	return max(minPingInterval, c.KeepAlive/2)
}

// Broker tunnels BMS frames through an MQTT broker reached over WebSocket
type Broker struct {
	*session
	cfg BrokerConfig

	// connMu guards conn and packetID
	connMu   sync.Mutex
	conn     *websocket.Conn
	packetID uint16

	writeMu sync.Mutex

	// pingEvery overrides the keepalive ping period when non-zero
	pingEvery time.Duration
	wg      sync.WaitGroup
}

// NewBroker creates a broker transport; defaults fill unset fields
func NewBroker(cfg BrokerConfig) *Broker {
	cfg.applyDefaults()
	return &Broker{session: newSession("mqtt", cfg.Options), cfg: cfg}
}

func (b *Broker) nextPacketID() uint16 {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	b.packetID++
	if b.packetID == 0 {
		b.packetID = 1
	}
	return b.packetID
}

// Connect dials the broker, opens an MQTT session and subscribes to the
// reply topic. Both handshakes must finish within SetupTimeout.
func (b *Broker) Connect(ctx context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	if b.connected() {
		return nil
	}

	setupCtx, cancel := context.WithTimeout(ctx, b.cfg.SetupTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: b.cfg.SetupTimeout,
		Subprotocols:     []string{"mqtt"},
	}
	if b.cfg.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, resp, err := dialer.DialContext(setupCtx, b.cfg.URL, nil)
	if err != nil {
		if setupCtx.Err() != nil {
			return fmt.Errorf("broker dial: %w", aborted(setupCtx))
		}
		if resp != nil {
			return bmserr.TransportState("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return bmserr.TransportState("WebSocket connection failed: %v", err)
	}

	// unblock setup reads when ctx ends or the setup window closes
	stop := context.AfterFunc(setupCtx, func() { conn.Close() })
	reader := &mqtt.Reader{}
	if err := b.handshake(conn, reader); err != nil {
		stop()
		conn.Close()
		if setupCtx.Err() != nil {
			return fmt.Errorf("broker setup: %w", aborted(setupCtx))
		}
		return err
	}
	if !stop() {
		return fmt.Errorf("broker setup: %w", aborted(setupCtx))
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()

	e := b.attach(LinkFunc(func(ctx context.Context, p []byte) error {
		return b.write(conn, mqtt.Publish{Topic: b.cfg.PubTopic, Payload: p})
	}))

	b.wg.Add(1)
	go b.readLoop(conn, reader, e)
	iv := b.cfg.pingInterval()
	if b.pingEvery > 0 {
		iv = b.pingEvery
	}
	if iv > 0 {
		b.wg.Add(1)
		go b.pingLoop(conn, e, iv)
	}

	b.logger().Info().
		Str("url", b.cfg.URL).
		Str("pub", b.cfg.PubTopic).
		Str("sub", b.cfg.SubTopic).
		Msg("broker connected")
	return nil
}

func (b *Broker) handshake(conn *websocket.Conn, reader *mqtt.Reader) error {
	err := b.write(conn, mqtt.Connect{
		ClientID:     b.cfg.ClientID,
		CleanSession: true,
		KeepAlive:    uint16(b.cfg.KeepAlive / time.Second),
		Username:     b.cfg.Username,
		Password:     b.cfg.Password,
	})
	if err != nil {
		return err
	}

	for {
		pkt, err := readPacket(conn, reader)
		if err != nil {
			return err
		}
		if ack, ok := pkt.(mqtt.ConnAck); ok {
			if !ack.Accepted() {
				return bmserr.TransportState("broker refused connection: %s", ack.Reason())
			}
			break
		}
	}

	id := b.nextPacketID()
	if err := b.write(conn, mqtt.Subscribe{PacketID: id, Topic: b.cfg.SubTopic}); err != nil {
		return err
	}
	for {
		pkt, err := readPacket(conn, reader)
		if err != nil {
			return err
		}
		ack, ok := pkt.(mqtt.SubAck)
		if !ok || ack.PacketID != id {
			continue
		}
		if ack.Rejected() {
			return bmserr.TransportState("broker rejected subscription to %s", b.cfg.SubTopic)
		}
		return nil
	}
}

type encoder interface {
	Encode() ([]byte, error)
}

func (b *Broker) write(conn *websocket.Conn, pkt encoder) error {
	raw, err := pkt.Encode()
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		return bmserr.TransportState("broker write: %v", err)
	}
	return nil
}

// readPacket returns the next whole MQTT packet, reading WebSocket messages
// as needed. Text messages are ignored.
func readPacket(conn *websocket.Conn, reader *mqtt.Reader) (mqtt.Packet, error) {
	raw, err := readRaw(conn, reader)
	if err != nil {
		return nil, err
	}
	return mqtt.Parse(raw)
}

func readRaw(conn *websocket.Conn, reader *mqtt.Reader) ([]byte, error) {
	for {
		raw, ok, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			return raw, nil
		}
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, bmserr.TransportState("broker read: %v", err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		reader.Push(data)
	}
}

func (b *Broker) readLoop(conn *websocket.Conn, reader *mqtt.Reader, e *Engine) {
	defer b.wg.Done()
	for {
		raw, err := readRaw(conn, reader)
		if err != nil {
			select {
			case <-e.Done():
				return
			default:
			}
			if !errors.Is(err, bmserr.ErrTransportState) {
				// a malformed length prefix leaves the stream unrecoverable
				b.logger().Warn().Err(err).Msg("broker stream corrupted")
			} else {
				b.logger().Warn().Err(err).Msg("broker connection lost")
			}
			b.fail(e, bmserr.TransportState("broker connection lost: %v", err))
			conn.Close()
			return
		}
		pkt, err := mqtt.Parse(raw)
		if err != nil {
			b.logger().Debug().Err(err).Msg("skipped malformed packet")
			continue
		}

		switch p := pkt.(type) {
		case mqtt.Publish:
			if p.Topic != b.cfg.SubTopic {
				b.logger().Debug().Str("topic", p.Topic).Msg("ignored publish on foreign topic")
				continue
			}
			e.Deliver(p.Payload)
		case mqtt.PingResp:
			b.logger().Trace().Msg("ping response")
		default:
			b.logger().Debug().Stringer("type", pkt.Type()).Msg("ignored packet")
		}
	}
}

func (b *Broker) pingLoop(conn *websocket.Conn, e *Engine, interval time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := b.write(conn, mqtt.PingReq{}); err != nil {
				b.fail(e, err)
				conn.Close()
				return
			}
		case <-e.Done():
			return
		}
	}
}

// Close sends DISCONNECT, closes the socket and waits for the loops to exit
func (b *Broker) Close() error {
	b.detach(bmserr.TransportState("broker closed"))

	b.connMu.Lock()
	conn := b.conn
	b.conn = nil
	b.connMu.Unlock()
	if conn == nil {
		b.wg.Wait()
		return nil
	}

	// best effort; the socket may already be gone
	_ = b.write(conn, mqtt.Disconnect{})
	conn.Close()
	b.wg.Wait()
	return nil
}
