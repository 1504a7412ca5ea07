package protocol

import "errors"

// Session-level sentinel errors. Use errors.Is to test for them.
var (
	// ErrConnectFailed covers cookie fetch, WebSocket dial, and write
	// failures on an otherwise-open socket.
	ErrConnectFailed = errors.New("protocol: connect failed")

	// ErrAuthFailed is returned when the LOGIN response is missing a
	// user record. Fatal — the supervisor does not retry automatically.
	ErrAuthFailed = errors.New("protocol: authentication failed")

	// ErrTimeout is returned by sendAwait when no response frame
	// arrives within the requested timeout.
	ErrTimeout = errors.New("protocol: request timed out")

	// ErrKeepaliveTimeout is returned when two consecutive keepalive
	// windows elapse without any inbound frame.
	ErrKeepaliveTimeout = errors.New("protocol: keepalive timeout, no inbound frames")

	// ErrNotReady is returned when an operation requiring a Ready
	// session is attempted in any other state.
	ErrNotReady = errors.New("protocol: session not ready")

	// ErrClosed is returned by sendAwait when the session is closed
	// while the call is waiting for its response, and by any send on a
	// session whose socket was never opened.
	ErrClosed = errors.New("protocol: session closed")
)
