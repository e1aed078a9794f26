package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrShortFrame = errors.New("frame too short")
	ErrBadFrame   = errors.New("malformed frame")
	ErrBadCRC     = errors.New("frame checksum mismatch")
)

// ParseFrame validates the framing of a notify response and returns the
// command byte and payload.
func ParseFrame(data []byte) (cmd byte, payload []byte, err error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	if data[0] != header0 || data[1] != header1 {
		return 0, nil, fmt.Errorf("%w: bad header % X", ErrBadFrame, data[:2])
	}
	n := int(data[4]) | int(data[5])<<8
	if len(data) < 8+n {
		return 0, nil, fmt.Errorf("%w: payload length %d exceeds frame", ErrBadFrame, n)
	}
	payload = data[6 : 6+n]
	if data[6+n] != CRC8(payload) {
		return 0, nil, ErrBadCRC
	}
	if data[7+n] != trailer {
		return 0, nil, fmt.Errorf("%w: bad trailer 0x%02X", ErrBadFrame, data[7+n])
	}
	return data[2], payload, nil
}

// DevState decodes the status byte from a GetDevState response.
type DevState struct {
	Raw       byte
	NoPaper   bool
	CoverOpen bool
	Overheat  bool
	LowPower  bool
	Paused    bool
	Busy      bool
}

func (s DevState) String() string {
	var flags []string
	if s.NoPaper {
		flags = append(flags, "no-paper")
	}
	if s.CoverOpen {
		flags = append(flags, "cover-open")
	}
	if s.Overheat {
		flags = append(flags, "overheat")
	}
	if s.LowPower {
		flags = append(flags, "low-power")
	}
	if s.Paused {
		flags = append(flags, "paused")
	}
	if s.Busy {
		flags = append(flags, "busy")
	}
	if len(flags) == 0 {
		return "ok"
	}
	return strings.Join(flags, ",")
}

// OK reports whether the printer can print right now.
func (s DevState) OK() bool {
	return !s.NoPaper && !s.CoverOpen && !s.Overheat
}

// ParseDevState decodes a full notify frame carrying a GetDevState response.
func ParseDevState(data []byte) (*DevState, error) {
	cmd, payload, err := ParseFrame(data)
	if err != nil {
		return nil, err
	}
	if cmd != CmdGetDevState {
		return nil, fmt.Errorf("%w: command 0x%02X is not a state response", ErrBadFrame, cmd)
	}
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty state payload", ErrBadFrame)
	}
	b := payload[0]
	return &DevState{
		Raw:       b,
		NoPaper:   b&0x01 != 0,
		CoverOpen: b&0x02 != 0,
		Overheat:  b&0x04 != 0,
		LowPower:  b&0x08 != 0,
		Paused:    b&0x10 != 0,
		Busy:      b&0x80 != 0,
	}, nil
}
