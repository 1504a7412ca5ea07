package protocol

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func TestEncodeCommandGoldenVector(t *testing.T) {
	got := EncodeCommand("51627", "3", "32", 0x00BB)
	want, err := hex.DecodeString("1400BB35313632370076770033003332")
	if err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeCommand = % X, want % X", got, want)
	}
}

func TestParseWidgetUpdateGoldenVector(t *testing.T) {
	record := []byte("89349\x00vw\x005\x00241.29")
	got, err := ParseWidgetUpdate(record)
	if err != nil {
		t.Fatalf("ParseWidgetUpdate returned error: %v", err)
	}
	want := WidgetUpdate{DeviceID: "89349", WidgetID: "5", WidgetValue: "241.29"}
	if got != want {
		t.Errorf("ParseWidgetUpdate = %+v, want %+v", got, want)
	}
}

func TestParseWidgetUpdateMalformedNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		[]byte("no-nul-bytes-here"),
		[]byte("device\x00notvw\x005\x00100"),
		[]byte("device\x00vw\x00onlythree"),
	}
	for _, in := range inputs {
		_, err := ParseWidgetUpdate(in)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("ParseWidgetUpdate(%q) error = %v, want ErrMalformedPayload", in, err)
		}
	}
}

func TestDecodeFrameShortFrame(t *testing.T) {
	for _, in := range [][]byte{nil, {0x14}, {0x14, 0x00}} {
		_, err := DecodeFrame(in)
		if !errors.Is(err, ErrShortFrame) {
			t.Errorf("DecodeFrame(% X) error = %v, want ErrShortFrame", in, err)
		}
	}
}

func TestDecodeFrameClassifiesWidgetUpdate(t *testing.T) {
	raw := EncodeCommand("89349", "5", "241.29", 0x0001)
	f, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame returned error: %v", err)
	}
	if f.Kind != PayloadWidgetUpdate {
		t.Fatalf("Kind = %v, want PayloadWidgetUpdate", f.Kind)
	}
	want := WidgetUpdate{DeviceID: "89349", WidgetID: "5", WidgetValue: "241.29"}
	if f.Widget != want {
		t.Errorf("Widget = %+v, want %+v", f.Widget, want)
	}
	if f.Opcode != OpcodeWidgetUpdate || f.MsgID != 0x0001 {
		t.Errorf("header = (0x%02X, %d), want (0x%02X, 1)", f.Opcode, f.MsgID, OpcodeWidgetUpdate)
	}
}

func TestDecodeFrameMalformedWidgetUpdateDoesNotPanic(t *testing.T) {
	raw, err := EncodeFrame(OpcodeUserWidget, 1, RawBytes("garbage"))
	if err != nil {
		t.Fatalf("EncodeFrame returned error: %v", err)
	}
	f, err := DecodeFrame(raw)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("DecodeFrame error = %v, want ErrMalformedPayload", err)
	}
	// Header fields must still be populated so the caller can log context.
	if f.Opcode != OpcodeUserWidget || f.MsgID != 1 {
		t.Errorf("header = (0x%02X, %d), want (0x%02X, 1)", f.Opcode, f.MsgID, OpcodeUserWidget)
	}
}

func TestDecodeFrameClassifiesJSONAndString(t *testing.T) {
	jsonFrame, err := EncodeFrame(OpcodeLogin, 2, map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("EncodeFrame returned error: %v", err)
	}
	f, err := DecodeFrame(jsonFrame)
	if err != nil {
		t.Fatalf("DecodeFrame returned error: %v", err)
	}
	if f.Kind != PayloadJSON {
		t.Errorf("Kind = %v, want PayloadJSON", f.Kind)
	}

	textFrame, err := EncodeFrame(OpcodeKeepalive, 3, "pong")
	if err != nil {
		t.Fatalf("EncodeFrame returned error: %v", err)
	}
	f, err = DecodeFrame(textFrame)
	if err != nil {
		t.Fatalf("DecodeFrame returned error: %v", err)
	}
	if f.Kind != PayloadString || f.Text != "pong" {
		t.Errorf("Kind/Text = %v/%q, want PayloadString/\"pong\"", f.Kind, f.Text)
	}
}

func TestDecodeFrameClassifiesEmptyPayload(t *testing.T) {
	frame, err := EncodeFrame(OpcodeKeepalive, 4, nil)
	if err != nil {
		t.Fatalf("EncodeFrame returned error: %v", err)
	}
	f, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame returned error: %v", err)
	}
	if f.Kind != PayloadNone {
		t.Errorf("Kind = %v, want PayloadNone", f.Kind)
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		opcode  byte
		payload any
	}{
		{"nil payload", OpcodeKeepalive, nil},
		{"json payload", OpcodeLogin, map[string]any{"email": "a@b.com"}},
		{"string payload", OpcodeDeviceNumber, "51627"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeFrame(tt.opcode, 7, tt.payload)
			if err != nil {
				t.Fatalf("EncodeFrame returned error: %v", err)
			}
			f, err := DecodeFrame(encoded)
			if err != nil {
				t.Fatalf("DecodeFrame returned error: %v", err)
			}
			if f.Opcode != tt.opcode || f.MsgID != 7 {
				t.Errorf("header = (0x%02X, %d), want (0x%02X, 7)", f.Opcode, f.MsgID, tt.opcode)
			}
		})
	}
}
