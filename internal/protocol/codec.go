// Package protocol implements the vendor WebSocket wire format and the
// session client that speaks it: frame header encode/decode, the
// widget-update and command payload convention, the login password
// hash, and the connect/handshake/keepalive state machine.
package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Opcodes, per the first header byte.
const (
	OpcodeLogin        byte = 0x02
	OpcodeDevicePage   byte = 0x04
	OpcodeKeepalive    byte = 0x06
	OpcodeCommand      byte = 0x14 // outbound write; also the inbound widget-update opcode
	OpcodeWidgetUpdate byte = 0x14
	OpcodeUserWidget   byte = 0x19 // inbound, user-driven widget update
	OpcodeDeviceQuery  byte = 0x1B
	OpcodeInit         byte = 0x30
	OpcodeDeviceNumber byte = 0x49
)

// headerLen is the compact 3-byte header: opcode (1 byte) | msgId (2
// bytes, big-endian). The extended 4-byte variant exists in the wild
// but the compact variant suffices for every operation this client
// performs and is what the golden vectors assume.
const headerLen = 3

// ErrShortFrame is returned when a buffer is too small to even hold a
// header.
var ErrShortFrame = errors.New("protocol: frame shorter than header")

// ErrMalformedPayload is returned when a widget-update or command
// payload doesn't match the NUL-delimited record shape. Callers must
// treat this as a dropped frame, not a fatal error.
var ErrMalformedPayload = errors.New("protocol: malformed payload")

// PayloadKind classifies a decoded frame's payload.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadJSON
	PayloadString
	PayloadWidgetUpdate
)

// WidgetUpdate is a parsed virtual-write record: a telemetry update
// when inbound, a command when outbound.
type WidgetUpdate struct {
	DeviceID    string
	WidgetID    string // the stream's pin, not its database id
	WidgetValue string
}

// Frame is a decoded message: header plus a payload classified by
// Kind. Raw always holds the undecoded payload bytes for logging.
type Frame struct {
	Opcode byte
	MsgID  uint16
	Kind   PayloadKind
	JSON   []byte
	Text   string
	Widget WidgetUpdate
	Raw    []byte
}

// RawBytes marks a payload to be appended to the frame verbatim,
// bypassing JSON marshaling. Used for widget-update and command
// payloads, which are NUL-delimited ASCII, not JSON.
type RawBytes []byte

// EncodeFrame serializes opcode/msgId/payload into wire bytes.
// Payload serialization, in priority order: nil produces no payload
// bytes, a RawBytes or []byte is appended verbatim, a string is
// appended as UTF-8 bytes, anything else is marshaled as JSON.
func EncodeFrame(opcode byte, msgID uint16, payload any) ([]byte, error) {
	header := make([]byte, headerLen)
	header[0] = opcode
	binary.BigEndian.PutUint16(header[1:3], msgID)

	var body []byte
	switch v := payload.(type) {
	case nil:
		// no payload bytes
	case RawBytes:
		body = v
	case []byte:
		body = v
	case string:
		body = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode frame payload: %w", err)
		}
		body = encoded
	}

	return append(header, body...), nil
}

// DecodeFrame parses wire bytes into a Frame. Opcode 0x14 and 0x19 are
// always treated as inbound widget updates — DecodeFrame is only ever
// called on bytes read off the socket, so the outbound/inbound
// ambiguity on 0x14 does not arise here.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < headerLen {
		return Frame{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortFrame, len(data), headerLen)
	}

	opcode := data[0]
	msgID := binary.BigEndian.Uint16(data[1:3])
	payload := data[headerLen:]

	f := Frame{Opcode: opcode, MsgID: msgID, Raw: payload}

	switch {
	case opcode == OpcodeWidgetUpdate || opcode == OpcodeUserWidget:
		wu, err := ParseWidgetUpdate(payload)
		if err != nil {
			return f, fmt.Errorf("%w: opcode 0x%02X msgId %d payload %X: %w", ErrMalformedPayload, opcode, msgID, payload, err)
		}
		f.Kind = PayloadWidgetUpdate
		f.Widget = wu
	case len(payload) == 0:
		f.Kind = PayloadNone
	case payload[0] == '{' || payload[0] == '[':
		f.Kind = PayloadJSON
		f.JSON = payload
	default:
		f.Kind = PayloadString
		f.Text = string(payload)
	}

	return f, nil
}

// EncodeCommand builds a command frame: header opcode 0x14, payload
// deviceId\0"vw"\0pin\0value, no trailing NUL.
func EncodeCommand(deviceID, pin, value string, msgID uint16) []byte {
	frame, _ := EncodeFrame(OpcodeCommand, msgID, RawBytes(buildWidgetRecord(deviceID, pin, value)))
	return frame
}

// ParseWidgetUpdate parses a NUL-delimited widget-update/command
// record: deviceId\0"vw"\0pin\0value.
func ParseWidgetUpdate(data []byte) (WidgetUpdate, error) {
	parts := bytes.Split(data, []byte{0})
	if len(parts) != 4 || string(parts[1]) != "vw" {
		return WidgetUpdate{}, fmt.Errorf("%w: expected 4 NUL-delimited fields with \"vw\" marker, got %X", ErrMalformedPayload, data)
	}

	return WidgetUpdate{
		DeviceID:    string(parts[0]),
		WidgetID:    string(parts[2]),
		WidgetValue: string(parts[3]),
	}, nil
}

func buildWidgetRecord(deviceID, pin, value string) []byte {
	var buf bytes.Buffer
	buf.WriteString(deviceID)
	buf.WriteByte(0)
	buf.WriteString("vw")
	buf.WriteByte(0)
	buf.WriteString(pin)
	buf.WriteByte(0)
	buf.WriteString(value)
	return buf.Bytes()
}
