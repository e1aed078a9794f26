//go:build darwin
// +build darwin

package transport

import (
	"os"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/nantokaworks/catstrip/internal/shared/logger"
)

func newDevice() (ble.Device, error) {
	// CoreBluetooth from a bare CLI binary can abort the process when the
	// usage descriptions of an app bundle are missing. Warn early so the
	// crash is at least explainable.
	if exe, err := os.Executable(); err == nil && !strings.Contains(exe, ".app/Contents/MacOS/") {
		logger.Warn("Running outside an app bundle, macOS may deny Bluetooth access")
	}
	return darwin.NewDevice()
}
