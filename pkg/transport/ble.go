// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// BLE defaults
const (
	BLEServiceUUID = "0000ffc0-0000-1000-8000-00805f9b34fb"
	BLEWriteUUID   = "0000ff03-0000-1000-8000-00805f9b34fb"
	BLENotifyUUID  = "0000ffc1-0000-1000-8000-00805f9b34fb"

	BLEDefaultTimeout       = 1500 * time.Millisecond
	BLEDefaultInterval      = 120 * time.Millisecond
	BLEDefaultChunkSize     = 20
	BLEDefaultChunkInterval = 20 * time.Millisecond
	BLEDefaultScanTimeout   = 10 * time.Second
)

// BLEConfig configures a BLE link
type BLEConfig struct {
	Options

	// DeviceID is the peripheral address, or its advertised local name.
	DeviceID string

	ServiceUUID string
	WriteUUID   string
	NotifyUUID  string

	ChunkSize     int
	ChunkInterval time.Duration
	ScanTimeout   time.Duration
}

func (c *BLEConfig) applyDefaults() {
	if c.ServiceUUID == "" {
		c.ServiceUUID = BLEServiceUUID
	}
	if c.WriteUUID == "" {
		c.WriteUUID = BLEWriteUUID
	}
	if c.NotifyUUID == "" {
		c.NotifyUUID = BLENotifyUUID
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = BLEDefaultChunkSize
	}
	if c.ChunkInterval == 0 {
		c.ChunkInterval = BLEDefaultChunkInterval
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = BLEDefaultScanTimeout
	}
	if c.Timeout == 0 {
		c.Timeout = BLEDefaultTimeout
	}
	if c.MinInterval == 0 {
		c.MinInterval = BLEDefaultInterval
	}
}

// Peripheral is a device seen during discovery
type Peripheral struct {
	Address string
	Name    string
	RSSI    int16
}

var (
	enableOnce sync.Once
	enableErr  error
)

func enableAdapter() error {
	enableOnce.Do(func() {
		enableErr = bluetooth.DefaultAdapter.Enable()
	})
	if enableErr != nil {
		return bmserr.TransportState("enable bluetooth adapter: %v", enableErr)
	}
	return nil
}

// scan runs an adapter scan until match returns true, ctx ends or the
// timeout elapses.
func scan(ctx context.Context, timeout time.Duration, match func(bluetooth.ScanResult) bool) error {
	if err := enableAdapter(); err != nil {
		return err
	}
	adapter := bluetooth.DefaultAdapter

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if match(result) {
				a.StopScan()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return bmserr.TransportState("scan: %v", err)
		}
		return nil
	case <-ctx.Done():
		adapter.StopScan()
		<-done
		return nil
	}
}

// Discover lists peripherals advertising within d. When service is non-empty
// only peripherals advertising that service UUID are returned.
func Discover(ctx context.Context, d time.Duration, service string) ([]Peripheral, error) {
	var filter *bluetooth.UUID
	if service != "" {
		u, err := bluetooth.ParseUUID(service)
		if err != nil {
			return nil, bmserr.Value("service uuid %q: %v", service, err)
		}
		filter = &u
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var out []Peripheral
	err := scan(ctx, d, func(r bluetooth.ScanResult) bool {
		if filter != nil && !r.HasServiceUUID(*filter) {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		p := Peripheral{Address: r.Address.String(), Name: r.LocalName(), RSSI: r.RSSI}
		if i, ok := seen[p.Address]; ok {
			if p.Name == "" {
				p.Name = out[i].Name
			}
			out[i] = p
			return false
		}
		seen[p.Address] = len(out)
		out = append(out, p)
		return false
	})
	mu.Lock()
	defer mu.Unlock()
	return out, err
}

// BLE drives a BMS over Bluetooth LE notifications
type BLE struct {
	*session
	cfg BLEConfig

	// devMu guards device and hasDevice
	devMu     sync.Mutex
	device    bluetooth.Device
	hasDevice bool
}

// NewBLE creates a BLE transport; defaults fill unset fields
func NewBLE(cfg BLEConfig) *BLE {
	cfg.applyDefaults()
	return &BLE{session: newSession("ble", cfg.Options), cfg: cfg}
}

func matchesDevice(id string, r bluetooth.ScanResult) bool {
	return strings.EqualFold(r.Address.String(), id) || (r.LocalName() != "" && r.LocalName() == id)
}

// Connect finds the device, selects its characteristics and enables notifications
func (b *BLE) Connect(ctx context.Context) error {
	if b.cfg.DeviceID == "" {
		return bmserr.Configuration("ble device identifier is required")
	}
	if b.connected() {
		return nil
	}
	svcUUID, err := bluetooth.ParseUUID(b.cfg.ServiceUUID)
	if err != nil {
		return bmserr.Configuration("service uuid: %v", err)
	}
	writeUUID, err := bluetooth.ParseUUID(b.cfg.WriteUUID)
	if err != nil {
		return bmserr.Configuration("write uuid: %v", err)
	}
	notifyUUID, err := bluetooth.ParseUUID(b.cfg.NotifyUUID)
	if err != nil {
		return bmserr.Configuration("notify uuid: %v", err)
	}

	var found bluetooth.ScanResult
	var ok bool
	if err := scan(ctx, b.cfg.ScanTimeout, func(r bluetooth.ScanResult) bool {
		if matchesDevice(b.cfg.DeviceID, r) {
			found, ok = r, true
			return true
		}
		return false
	}); err != nil {
		return err
	}
	if !ok {
		return bmserr.TransportState("device %s not found within %s", b.cfg.DeviceID, b.cfg.ScanTimeout)
	}

	device, err := bluetooth.DefaultAdapter.Connect(found.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return bmserr.TransportState("connect %s: %v", b.cfg.DeviceID, err)
	}

	writeChar, notifyChar, err := selectCharacteristics(device, svcUUID, writeUUID, notifyUUID)
	if err != nil {
		device.Disconnect()
		return err
	}

	e := b.attach(LinkFunc(func(ctx context.Context, p []byte) error {
		return writeChunked(ctx, func(chunk []byte) error {
			_, err := writeChar.WriteWithoutResponse(chunk)
			return err
		}, p, b.cfg.ChunkSize, b.cfg.ChunkInterval)
	}))

	// notifications route to this connection's engine only
	if err := notifyChar.EnableNotifications(e.Deliver); err != nil {
		b.detach(bmserr.TransportState("enable notifications failed"))
		device.Disconnect()
		return bmserr.TransportState("enable notifications: %v", err)
	}

	b.devMu.Lock()
	b.device, b.hasDevice = device, true
	b.devMu.Unlock()
	b.logger().Info().Str("device", found.Address.String()).Str("name", found.LocalName()).Msg("ble connected")
	return nil
}

// selectCharacteristics picks the service matching svc, falling back to the
// first service, and its write and notify characteristics by UUID.
func selectCharacteristics(device bluetooth.Device, svc, write, notify bluetooth.UUID) (w, n bluetooth.DeviceCharacteristic, err error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return w, n, bmserr.TransportState("discover services: %v", err)
	}
	if len(services) == 0 {
		return w, n, bmserr.Protocol("no BLE services found on device")
	}
	service := services[0]
	for _, s := range services {
		if s.UUID() == svc {
			service = s
			break
		}
	}

	chars, err := service.DiscoverCharacteristics(nil)
	if err != nil {
		return w, n, bmserr.TransportState("discover characteristics: %v", err)
	}
	var haveW, haveN bool
	for _, c := range chars {
		switch c.UUID() {
		case write:
			w, haveW = c, true
		case notify:
			n, haveN = c, true
		}
	}
	if !haveW {
		return w, n, bmserr.Protocol("write characteristic %s not found", write)
	}
	if !haveN {
		return w, n, bmserr.Protocol("notify characteristic %s not found", notify)
	}
	return w, n, nil
}

// Close fails any pending request and disconnects the device
func (b *BLE) Close() error {
	b.detach(bmserr.TransportState("ble disconnected"))
	b.devMu.Lock()
	device, ok := b.device, b.hasDevice
	b.hasDevice = false
	b.devMu.Unlock()
	if !ok {
		return nil
	}
	return device.Disconnect()
}
