package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/nantokaworks/catstrip/internal/shared/logger"
	"go.uber.org/zap"
)

// GATT identifiers of the GB01 printer family. Characteristics show up
// under the primary pair on most units and under the alternate pair on some
// clones, so discovery tries both before giving up.
const (
	svcShort   = 0xAE30
	txShort    = 0xAE01
	rxShort    = 0xAE02
	txAltShort = 0xAE03
	rxAltShort = 0xAE04
)

// namePrefixes are the advertised names seen across the family.
var namePrefixes = []string{"PD01", "GB0", "MX"}

var (
	devMu sync.Mutex
	dev   ble.Device
)

// defaultDevice opens the platform BLE adapter once and reuses it.
func defaultDevice() (ble.Device, error) {
	devMu.Lock()
	defer devMu.Unlock()
	if dev != nil {
		return dev, nil
	}
	d, err := newDevice()
	if err != nil {
		return nil, fmt.Errorf("open bluetooth adapter: %w", err)
	}
	ble.SetDefaultDevice(d)
	dev = d
	return d, nil
}

func baseUUID(short uint16) ble.UUID {
	return ble.MustParse(fmt.Sprintf("0000%04x-0000-1000-8000-00805f9b34fb", short))
}

// uuidIs matches both the 16 bit and the expanded 128 bit form.
func uuidIs(u ble.UUID, short uint16) bool {
	return u.Equal(ble.UUID16(short)) || u.Equal(baseUUID(short))
}

func advertisesPrinter(a ble.Advertisement, nameFilter string) bool {
	if nameFilter != "" {
		return strings.HasPrefix(a.LocalName(), nameFilter)
	}
	for _, u := range a.Services() {
		if uuidIs(u, svcShort) {
			return true
		}
	}
	for _, p := range namePrefixes {
		if p != "" && strings.HasPrefix(a.LocalName(), p) {
			return true
		}
	}
	return false
}

// DialBLE connects to a printer over Bluetooth LE. With an address it
// connects to exactly that device, otherwise it takes the first
// advertisement that looks like a printer.
func DialBLE(ctx context.Context, address string, opts Options) (Conn, error) {
	if _, err := defaultDevice(); err != nil {
		return nil, err
	}

	var filter ble.AdvFilter
	if address != "" {
		filter = func(a ble.Advertisement) bool {
			return strings.EqualFold(a.Addr().String(), address)
		}
	} else {
		filter = func(a ble.Advertisement) bool {
			return advertisesPrinter(a, opts.NameFilter)
		}
	}

	client, err := ble.Connect(ctx, filter)
	if err != nil {
		return nil, err
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("discover services: %w", err)
	}

	tx := findChar(profile, txShort)
	if tx == nil {
		tx = findChar(profile, txAltShort)
	}
	if tx == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("%w: no write characteristic", ErrCharacteristicNotFound)
	}

	rx := findChar(profile, rxShort)
	if rx == nil {
		rx = findChar(profile, rxAltShort)
	}
	if rx == nil {
		logger.Warn("Printer exposes no notify characteristic", zap.String("address", client.Addr().String()))
	}

	logger.Debug("Printer services discovered",
		zap.String("address", client.Addr().String()),
		zap.Bool("notify", rx != nil))

	return &bleConn{client: client, tx: tx, rx: rx}, nil
}

func findChar(p *ble.Profile, short uint16) *ble.Characteristic {
	for _, svc := range p.Services {
		for _, c := range svc.Characteristics {
			if uuidIs(c.UUID, short) {
				return c
			}
		}
	}
	return nil
}

type bleConn struct {
	client ble.Client
	tx     *ble.Characteristic
	rx     *ble.Characteristic
}

func (c *bleConn) WriteChunk(data []byte) error {
	return c.client.WriteCharacteristic(c.tx, data, true)
}

func (c *bleConn) Subscribe(fn func(data []byte)) error {
	if c.rx == nil {
		return fmt.Errorf("%w: no notify characteristic", ErrCharacteristicNotFound)
	}
	return c.client.Subscribe(c.rx, false, func(req []byte) {
		fn(req)
	})
}

func (c *bleConn) Close() error {
	return c.client.CancelConnection()
}

func (c *bleConn) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

// Scan lists nearby printers as an address to name map. It runs until the
// context expires.
func Scan(ctx context.Context, opts Options) (map[string]string, error) {
	if _, err := defaultDevice(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	found := make(map[string]string)
	handler := func(a ble.Advertisement) {
		mu.Lock()
		defer mu.Unlock()
		addr := a.Addr().String()
		if name := a.LocalName(); name != "" || found[addr] == "" {
			found[addr] = name
		}
	}
	filter := func(a ble.Advertisement) bool {
		return advertisesPrinter(a, opts.NameFilter)
	}

	err := ble.Scan(ctx, true, handler, filter)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	return found, nil
}
