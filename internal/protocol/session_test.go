package protocol

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateHandshaking:  "handshaking",
		StateReady:        "ready",
		StateClosing:      "closing",
		StateError:        "error",
		State(99):         "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNextMsgIDWrapsAtCounterWidth(t *testing.T) {
	s := &Session{}
	if got := s.nextMsgID(); got != 1 {
		t.Errorf("first nextMsgID() = %d, want 1", got)
	}
	if got := s.nextMsgID(); got != 2 {
		t.Errorf("second nextMsgID() = %d, want 2", got)
	}

	s.msgCounter.Store(0xFFFF)
	if got := s.nextMsgID(); got != 0 {
		t.Errorf("nextMsgID() after 0xFFFF = %d, want 0 (wrap)", got)
	}
}

func TestFetchDevicePageRequiresReadyState(t *testing.T) {
	s := &Session{done: make(chan struct{})}
	s.setState(StateConnecting)

	_, err := s.FetchDevicePage(context.Background(), "51627")
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("FetchDevicePage in non-Ready state: got %v, want ErrNotReady", err)
	}
}

type fakeCookieFetcher struct{}

func (fakeCookieFetcher) FetchCookie(ctx context.Context) (string, error) {
	return "JSESSIONID=abc123", nil
}

// startFakeVendor runs a minimal stand-in for the vendor WebSocket
// endpoint: it answers LOGIN, DEVICE_QUERY, DEVICE_NUMBER, and
// DEVICE_PAGE, pushes one unsolicited widget update after the device
// query reply, and forwards any outbound command payload to onCommand.
func startFakeVendor(t *testing.T, onCommand func(payload []byte)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/dashws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if len(data) < headerLen {
				continue
			}
			opcode := data[0]
			msgID := binary.BigEndian.Uint16(data[1:3])
			payload := data[headerLen:]

			switch opcode {
			case OpcodeLogin:
				resp, _ := EncodeFrame(OpcodeLogin, msgID, map[string]string{"email": "driver@example.com", "id": "user-1"})
				conn.WriteMessage(websocket.BinaryMessage, resp)
			case OpcodeDeviceQuery:
				resp, _ := EncodeFrame(OpcodeDeviceQuery, msgID, deviceQueryResponse{
					Devices: []Device{{DeviceID: "51627", Name: "Garage Charger"}},
				})
				conn.WriteMessage(websocket.BinaryMessage, resp)
				go func() {
					time.Sleep(20 * time.Millisecond)
					wu := EncodeCommand("51627", "5", "241.29", 999)
					conn.WriteMessage(websocket.BinaryMessage, wu)
				}()
			case OpcodeDeviceNumber:
				resp, _ := EncodeFrame(OpcodeDeviceNumber, msgID, "ack")
				conn.WriteMessage(websocket.BinaryMessage, resp)
			case OpcodeDevicePage:
				page := DevicePage{Dashboard: Dashboard{Widgets: []Widget{{Modules: []Module{{
					DisplayDataStreams: []Stream{{ID: "1", Pin: "5", Name: "Voltage"}},
				}}}}}}
				resp, _ := EncodeFrame(OpcodeDevicePage, msgID, page)
				conn.WriteMessage(websocket.BinaryMessage, resp)
			case OpcodeCommand:
				if onCommand != nil {
					onCommand(payload)
				}
			}
		}
	})

	return httptest.NewServer(mux)
}

func TestConnectFullHandshakeTelemetryAndCommand(t *testing.T) {
	commands := make(chan []byte, 4)
	server := startFakeVendor(t, func(payload []byte) { commands <- payload })
	defer server.Close()

	orig := vendorWSURL
	vendorWSURL = "ws" + strings.TrimPrefix(server.URL, "http") + "/dashws"
	defer func() { vendorWSURL = orig }()

	widgetUpdates := make(chan WidgetUpdate, 4)
	commandsSent := make(chan WidgetUpdate, 4)

	sess, devices, err := Connect(context.Background(), Options{
		Email:            "driver@example.com",
		Password:         "hunter2",
		CookieFetcher:    fakeCookieFetcher{},
		HandshakeTimeout: 2 * time.Second,
		OnWidgetUpdate: func(deviceID, pin, value string) {
			widgetUpdates <- WidgetUpdate{DeviceID: deviceID, WidgetID: pin, WidgetValue: value}
		},
		OnCommandSent: func(deviceID, pin, value string) {
			commandsSent <- WidgetUpdate{DeviceID: deviceID, WidgetID: pin, WidgetValue: value}
		},
	})
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	defer sess.Close()

	if sess.State() != StateReady {
		t.Fatalf("State() = %v, want StateReady", sess.State())
	}
	if len(devices) != 1 || string(devices[0].DeviceID) != "51627" {
		t.Fatalf("devices = %+v, want one device with id 51627", devices)
	}

	page, err := sess.FetchDevicePage(context.Background(), "51627")
	if err != nil {
		t.Fatalf("FetchDevicePage returned error: %v", err)
	}
	streams := page.Streams()
	if len(streams) != 1 || string(streams[0].Pin) != "5" || streams[0].Name != "Voltage" {
		t.Fatalf("Streams() = %+v, want one Voltage stream on pin 5", streams)
	}

	select {
	case wu := <-widgetUpdates:
		want := WidgetUpdate{DeviceID: "51627", WidgetID: "5", WidgetValue: "241.29"}
		if wu != want {
			t.Errorf("widget update = %+v, want %+v", wu, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for widget update")
	}

	if err := sess.SendCommand("51627", "3", "32"); err != nil {
		t.Fatalf("SendCommand returned error: %v", err)
	}

	select {
	case payload := <-commands:
		want := "51627\x00vw\x003\x0032"
		if string(payload) != want {
			t.Errorf("server received command payload %q, want %q", payload, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive command")
	}

	select {
	case echoed := <-commandsSent:
		want := WidgetUpdate{DeviceID: "51627", WidgetID: "3", WidgetValue: "32"}
		if echoed != want {
			t.Errorf("OnCommandSent = %+v, want %+v", echoed, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnCommandSent")
	}
}

func TestConnectAuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux.HandleFunc("/dashws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil || len(data) < headerLen {
			return
		}
		msgID := binary.BigEndian.Uint16(data[1:3])
		// Respond to LOGIN with an empty payload, simulating a missing
		// user record.
		resp, _ := EncodeFrame(OpcodeLogin, msgID, nil)
		conn.WriteMessage(websocket.BinaryMessage, resp)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	orig := vendorWSURL
	vendorWSURL = "ws" + strings.TrimPrefix(server.URL, "http") + "/dashws"
	defer func() { vendorWSURL = orig }()

	_, _, err := Connect(context.Background(), Options{
		Email:            "driver@example.com",
		Password:         "wrong",
		CookieFetcher:    fakeCookieFetcher{},
		HandshakeTimeout: 2 * time.Second,
	})
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Connect with empty LOGIN response: got %v, want ErrAuthFailed", err)
	}
}
