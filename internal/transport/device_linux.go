//go:build linux
// +build linux

package transport

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func newDevice() (ble.Device, error) {
	return linux.NewDevice()
}
