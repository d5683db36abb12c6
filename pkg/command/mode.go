package command

import (
	"fmt"
	"strings"
)

// Mode selects which channel operation a command performs
type Mode int

const (
	// ModeSendReceive sends the request and waits for a response
	ModeSendReceive Mode = iota
	// ModeSend only sends the request
	ModeSend
	// ModeReceive only waits for a response
	ModeReceive
)

func (m Mode) String() string {
	switch m {
	case ModeSendReceive:
		return "send_receive"
	case ModeSend:
		return "send"
	case ModeReceive:
		return "receive"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeSendReceive || m == ModeSend || m == ModeReceive
}

// SendsData reports whether the mode writes the request to the channel
func (m Mode) SendsData() bool {
	return m == ModeSend || m == ModeSendReceive
}

// ParseMode parses a mode name as produced by String
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "send_receive", "sendreceive", "":
		return ModeSendReceive, nil
	case "send":
		return ModeSend, nil
	case "receive":
		return ModeReceive, nil
	default:
		return ModeSendReceive, fmt.Errorf("unknown command mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("unknown command mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
