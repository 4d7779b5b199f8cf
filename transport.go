package telemetry

import "context"

// transport dials the vehicle-data server. The production implementation uses
// gorilla/websocket (socket.go); tests may substitute their own.
type transport interface {
	// dial opens one connection. The context bounds the handshake.
	dial(ctx context.Context) (wireConn, error)
}

// wireConn is one open socket. Reads block; writes are safe for concurrent
// use; close is idempotent and unblocks any pending read.
type wireConn interface {
	// readFrame returns the next inbound frame and whether it is binary.
	readFrame() (data []byte, binary bool, err error)

	// writeText sends one UTF-8 text frame.
	writeText(data []byte) error

	close() error
}
