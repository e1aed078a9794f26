// Package protocol implements the wire format of the GB01 family of BLE
// thermal printers (cat printers).
//
// Every frame has the same layout:
//
//	0x51 0x78 <cmd> 0x00 <lenL> <lenH> <payload...> <crc8(payload)> 0xFF
//
// The length is little-endian and counts payload bytes only. The checksum
// is CRC-8 (poly 0x07, init 0x00) over the payload only.
package protocol

// Fixed characteristics of the print head.
const (
	Width    = 384       // dots per row
	RowBytes = Width / 8 // packed row size
	DPI      = 200
)

// WidthCM is the physical print width in centimeters (384 dots at 200 DPI).
func WidthCM() float64 {
	return float64(Width) / DPI * 2.54
}

// Command identifiers.
const (
	CmdSetPaper       = 0xA1
	CmdDrawBitmap     = 0xA2
	CmdGetDevState    = 0xA3
	CmdSetQuality     = 0xA4
	CmdControlLattice = 0xA6
	CmdSetEnergy      = 0xAF
	CmdFeedPaper      = 0xBD
	CmdApplyEnergy    = 0xBE
)

const (
	header0 = 0x51
	header1 = 0x78
	trailer = 0xFF
)

var (
	latticeStart = []byte{0xAA, 0x55, 0x17, 0x38, 0x44, 0x5F, 0x5F, 0x5F, 0x44, 0x38, 0x2C}
	latticeEnd   = []byte{0xAA, 0x55, 0x17, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x17}
)

// CRC8 computes the frame checksum: polynomial 0x07, initial value 0x00,
// no reflection, no final XOR.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Encode wraps a command payload into a complete frame.
func Encode(cmd byte, payload []byte) []byte {
	n := len(payload)
	frame := make([]byte, 0, n+8)
	frame = append(frame, header0, header1, cmd, 0x00, byte(n), byte(n>>8))
	frame = append(frame, payload...)
	frame = append(frame, CRC8(payload), trailer)
	return frame
}

// GetDevState asks the printer for its status byte. The answer arrives as a
// notify frame, see ParseDevState.
func GetDevState() []byte {
	return Encode(CmdGetDevState, []byte{0x00})
}

// SetQuality200DPI selects the standard print quality.
func SetQuality200DPI() []byte {
	return Encode(CmdSetQuality, []byte{0x32})
}

// LatticeStart begins a print section. Must precede the first bitmap row.
func LatticeStart() []byte {
	return Encode(CmdControlLattice, latticeStart)
}

// LatticeEnd closes a print section.
func LatticeEnd() []byte {
	return Encode(CmdControlLattice, latticeEnd)
}

// SetEnergy sets the thermal energy (darkness), little-endian.
func SetEnergy(level uint16) []byte {
	return Encode(CmdSetEnergy, []byte{byte(level), byte(level >> 8)})
}

// ApplyEnergy commits the energy level set by SetEnergy.
func ApplyEnergy() []byte {
	return Encode(CmdApplyEnergy, []byte{0x01})
}

// SetPaper is sent a few times at the end of a job to settle the paper.
func SetPaper() []byte {
	return Encode(CmdSetPaper, []byte{0x30, 0x00})
}

// FeedPaper advances the paper by the given number of lines.
func FeedPaper(lines uint8) []byte {
	return Encode(CmdFeedPaper, []byte{lines})
}
