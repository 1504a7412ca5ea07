package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// vendorWSURL is a var, not a const, so tests can redirect Connect at
// a local fake server.
var vendorWSURL = "wss://app.eviqo.io/dashws"

const (
	originHeader  = "https://app.eviqo.io"
	browserUA     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	clientVersion = "0.98.2"
	deviceLocale  = "en_US"
	devicePageID  = "17948"
)

// Timeouts and cadences per spec.md §5.
const (
	defaultHandshakeTimeout = 10 * time.Second
	keepaliveInterval       = 15 * time.Second
	keepaliveCheckInterval  = 5 * time.Second
	writeTimeout            = 5 * time.Second
	widgetQueueSize         = 256
)

// State is a position in the session's connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateReady
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is satisfied by *logging.Logger (slog-backed) and anything
// shaped like it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CookieFetcher obtains the Cookie header value the WebSocket
// handshake presents, captured from the vendor's HTTPS login page.
type CookieFetcher interface {
	FetchCookie(ctx context.Context) (string, error)
}

// Options configures Connect.
type Options struct {
	Email    string
	Password string

	CookieFetcher CookieFetcher

	// SendInit controls whether the optional INIT frame (opcode 0x30)
	// is sent before LOGIN. The official client skips it; so does this
	// client by default.
	SendInit bool

	HandshakeTimeout time.Duration

	Logger Logger

	OnWidgetUpdate func(deviceID, pin, value string)
	OnCommandSent  func(deviceID, pin, value string)
	OnStateChange  func(State)
}

// Session owns one WebSocket connection to the vendor service: the
// handshake, the keepalive pump, request/response correlation, and
// command emission. The bridge supervisor owns everything else.
type Session struct {
	opts Options
	conn *websocket.Conn

	stateMu sync.RWMutex
	state   State

	msgCounter atomic.Uint32

	writeMu  sync.Mutex
	lastSend atomic.Int64
	lastRecv atomic.Int64

	pendingMu sync.Mutex
	pending   chan Frame

	widgetQueue chan WidgetUpdate

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Connect performs the full handshake (§4.2): cookie fetch, WebSocket
// open, optional INIT, LOGIN, and DEVICE_QUERY. On success the session
// is in StateReady, its keepalive pump is running, and the enumerated
// device list is returned.
func Connect(ctx context.Context, opts Options) (*Session, []Device, error) {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}

	s := &Session{
		opts:        opts,
		done:        make(chan struct{}),
		widgetQueue: make(chan WidgetUpdate, widgetQueueSize),
	}
	s.setState(StateConnecting)

	cookie, err := opts.CookieFetcher.FetchCookie(ctx)
	if err != nil {
		s.setState(StateError)
		return nil, nil, fmt.Errorf("%w: cookie fetch: %w", ErrConnectFailed, err)
	}

	header := http.Header{}
	header.Set("Cookie", cookie)
	header.Set("User-Agent", browserUA)
	header.Set("Origin", originHeader)

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, vendorWSURL, header)
	if err != nil {
		s.setState(StateError)
		return nil, nil, fmt.Errorf("%w: websocket dial: %w", ErrConnectFailed, err)
	}
	s.conn = conn
	now := time.Now().UnixNano()
	s.lastSend.Store(now)
	s.lastRecv.Store(now)

	s.setState(StateHandshaking)

	// The receive loop must run before any sendAwait call, since
	// response correlation depends on it.
	s.wg.Add(2)
	go s.receiveLoop()
	go s.widgetWorker()

	if opts.SendInit {
		initPayload := map[string]string{
			"clientType": "web",
			"version":    clientVersion,
			"locale":     deviceLocale,
		}
		if _, err := s.sendAwait(OpcodeInit, initPayload, opts.HandshakeTimeout); err != nil {
			s.fail(err)
			return nil, nil, fmt.Errorf("%w: init: %w", ErrConnectFailed, err)
		}
	}

	hash := ComputeHash(opts.Email, opts.Password)
	loginPayload := map[string]string{
		"email":      opts.Email,
		"hash":       hash,
		"clientType": "web",
		"version":    clientVersion,
		"locale":     deviceLocale,
	}
	loginResp, err := s.sendAwait(OpcodeLogin, loginPayload, opts.HandshakeTimeout)
	if err != nil {
		s.fail(err)
		return nil, nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if loginResp.Kind != PayloadJSON || len(loginResp.JSON) == 0 {
		s.fail(ErrAuthFailed)
		return nil, nil, ErrAuthFailed
	}

	query := deviceQueryRequest{
		DocType:  "DEVICE",
		Mode:     "MATCH_ALL",
		ViewType: "LIST",
		Filters: []deviceQueryFilter{{
			Type:      "SUB_SEGMENT",
			Filters:   []any{},
			Mode:      "MATCH_ANY",
			IsCurrent: true,
		}},
		Offset: 0,
		Limit:  17,
		Order:  "ASC",
		SortBy: "Name",
	}
	queryResp, err := s.sendAwait(OpcodeDeviceQuery, query, opts.HandshakeTimeout)
	if err != nil {
		s.fail(err)
		return nil, nil, fmt.Errorf("%w: device query: %w", ErrConnectFailed, err)
	}

	var decoded deviceQueryResponse
	if queryResp.Kind == PayloadJSON {
		if err := json.Unmarshal(queryResp.JSON, &decoded); err != nil {
			s.fail(err)
			return nil, nil, fmt.Errorf("%w: device query decode: %w", ErrConnectFailed, err)
		}
	}

	s.setState(StateReady)
	s.wg.Add(1)
	go s.keepaliveLoop()

	return s, decoded.Devices, nil
}

type deviceQueryFilter struct {
	Type      string `json:"type"`
	Filters   []any  `json:"filters"`
	Mode      string `json:"mode"`
	IsCurrent bool   `json:"isCurrent"`
}

type deviceQueryRequest struct {
	DocType  string              `json:"docType"`
	Mode     string              `json:"mode"`
	ViewType string              `json:"viewType"`
	Filters  []deviceQueryFilter `json:"filters"`
	Offset   int                 `json:"offset"`
	Limit    int                 `json:"limit"`
	Order    string              `json:"order"`
	SortBy   string              `json:"sortBy"`
}

type deviceQueryResponse struct {
	Devices []Device `json:"devices"`
}

type devicePageRequest struct {
	PageID          string  `json:"pageId"`
	DeviceID        string  `json:"deviceId"`
	DashboardPageID *string `json:"dashboardPageId"`
}

// FetchDevicePage runs the DEVICE_NUMBER/DEVICE_PAGE pair (§4.2 step
// 6) for a single device and decodes the response.
func (s *Session) FetchDevicePage(ctx context.Context, deviceID string) (DevicePage, error) {
	if s.State() != StateReady {
		return DevicePage{}, ErrNotReady
	}

	if _, err := s.sendAwait(OpcodeDeviceNumber, deviceID, defaultHandshakeTimeout); err != nil {
		return DevicePage{}, fmt.Errorf("protocol: device number: %w", err)
	}

	req := devicePageRequest{PageID: devicePageID, DeviceID: deviceID}
	resp, err := s.sendAwait(OpcodeDevicePage, req, defaultHandshakeTimeout)
	if err != nil {
		return DevicePage{}, fmt.Errorf("protocol: device page: %w", err)
	}

	var page DevicePage
	if resp.Kind == PayloadJSON {
		if err := json.Unmarshal(resp.JSON, &page); err != nil {
			return DevicePage{}, fmt.Errorf("protocol: device page decode: %w", err)
		}
	}
	return page, nil
}

// SendCommand allocates a fresh message id, emits the command frame,
// and synchronously fires OnCommandSent so the bridge can echo state
// optimistically before the vendor's own widget update arrives.
func (s *Session) SendCommand(deviceID, pin, value string) error {
	msgID := s.nextMsgID()
	frame := EncodeCommand(deviceID, pin, value, msgID)
	if err := s.writeFrame(frame); err != nil {
		return err
	}
	if s.opts.OnCommandSent != nil {
		s.opts.OnCommandSent(deviceID, pin, value)
	}
	return nil
}

// sendAwait allocates the next msgId, sends opcode/payload, and waits
// for the next inbound non-widget-update frame.
func (s *Session) sendAwait(opcode byte, payload any, timeout time.Duration) (Frame, error) {
	msgID := s.nextMsgID()
	frame, err := EncodeFrame(opcode, msgID, payload)
	if err != nil {
		return Frame{}, err
	}

	respCh := make(chan Frame, 1)
	s.pendingMu.Lock()
	s.pending = respCh
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		if s.pending == respCh {
			s.pending = nil
		}
		s.pendingMu.Unlock()
	}()

	if err := s.writeFrame(frame); err != nil {
		return Frame{}, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(timeout):
		return Frame{}, ErrTimeout
	case <-s.done:
		return Frame{}, ErrClosed
	}
}

// sendFire sends opcode/payload without waiting for a response.
func (s *Session) sendFire(opcode byte, payload any) error {
	msgID := s.nextMsgID()
	frame, err := EncodeFrame(opcode, msgID, payload)
	if err != nil {
		return err
	}
	return s.writeFrame(frame)
}

func (s *Session) nextMsgID() uint16 {
	return uint16(s.msgCounter.Add(1) & 0xFFFF)
}

func (s *Session) writeFrame(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	s.lastSend.Store(time.Now().UnixNano())
	return nil
}

func (s *Session) receiveLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosing() {
				return
			}
			s.fail(fmt.Errorf("%w: read: %w", ErrConnectFailed, err))
			return
		}
		s.lastRecv.Store(time.Now().UnixNano())

		frame, err := DecodeFrame(data)
		if err != nil {
			s.logWarn("dropping malformed frame", "error", err)
			continue
		}

		if frame.Kind == PayloadWidgetUpdate {
			s.dispatchWidgetUpdate(frame.Widget)
			continue
		}

		s.deliverResponse(frame)
	}
}

func (s *Session) deliverResponse(frame Frame) {
	s.pendingMu.Lock()
	ch := s.pending
	s.pendingMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- frame:
	default:
	}
}

// dispatchWidgetUpdate queues telemetry for a single worker goroutine.
// A single worker (rather than the bounded pool this client's
// keepalive/command paths might otherwise suggest) is deliberate: §5
// requires publishes to a single topic to preserve emitting order,
// and a pool of concurrent workers could reorder two updates for the
// same stream.
func (s *Session) dispatchWidgetUpdate(w WidgetUpdate) {
	select {
	case s.widgetQueue <- w:
	default:
		s.logWarn("widget update queue full, dropping", "deviceId", w.DeviceID, "pin", w.WidgetID)
	}
}

func (s *Session) widgetWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case w := <-s.widgetQueue:
			s.callOnWidgetUpdate(w)
		}
	}
}

func (s *Session) callOnWidgetUpdate(w WidgetUpdate) {
	defer func() {
		if r := recover(); r != nil {
			s.logErr("widget update callback panic", fmt.Errorf("%v", r))
		}
	}()
	if s.opts.OnWidgetUpdate != nil {
		s.opts.OnWidgetUpdate(w.DeviceID, w.WidgetID, w.WidgetValue)
	}
}

func (s *Session) keepaliveLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(keepaliveCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()

			lastSend := time.Unix(0, s.lastSend.Load())
			if now.Sub(lastSend) >= keepaliveInterval {
				if err := s.sendFire(OpcodeKeepalive, nil); err != nil {
					s.fail(fmt.Errorf("%w: keepalive: %w", ErrConnectFailed, err))
					return
				}
			}

			lastRecv := time.Unix(0, s.lastRecv.Load())
			if now.Sub(lastRecv) >= 2*keepaliveInterval {
				s.fail(fmt.Errorf("%w: last inbound frame %v ago", ErrKeepaliveTimeout, now.Sub(lastRecv)))
				return
			}
		}
	}
}

// fail transitions to StateError, releases the socket, and stops the
// session's goroutines. Safe to call more than once or concurrently
// with Close.
func (s *Session) fail(err error) {
	s.closeOnce.Do(func() {
		s.setState(StateError)
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
	s.logErr("session failed", err)
}

// Close gracefully tears down the session and waits for its
// goroutines to exit.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
	s.wg.Wait()
	s.setState(StateDisconnected)
	return nil
}

func (s *Session) isClosing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(state)
	}
}

func (s *Session) logWarn(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, args...)
	}
}

func (s *Session) logErr(msg string, err error) {
	if s.opts.Logger != nil {
		s.opts.Logger.Error(msg, "error", err)
	}
}
