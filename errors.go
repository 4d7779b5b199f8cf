package telemetry

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// Sentinel errors for client state.
var (
	ErrClientDestroyed = errors.New("client is destroyed")
	ErrConnectTimeout  = errors.New("connection attempt timed out")
)

// ConnectionError represents a failure to open or maintain the socket.
type ConnectionError struct {
	URL    string
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error [%s]: %s", e.URL, e.Reason)
}

// ErrorKind classifies client-level failures that cannot be returned
// to a direct caller.
type ErrorKind int

const (
	ErrDecodeFailure   ErrorKind = iota // inbound frame couldn't be decoded
	ErrSchemaLoad                       // schema fetch/compile failed (retries exhausted)
	ErrSubscriberPanic                  // subscriber callback panicked and was removed
	ErrListenerPanic                    // connection-state or resume listener panicked
	ErrTransportWrite                   // failed to write to connection (ping, etc.)
)

var errorKindNames = [...]string{
	ErrDecodeFailure:   "ErrDecodeFailure",
	ErrSchemaLoad:      "ErrSchemaLoad",
	ErrSubscriberPanic: "ErrSubscriberPanic",
	ErrListenerPanic:   "ErrListenerPanic",
	ErrTransportWrite:  "ErrTransportWrite",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// ClientError represents an error the client could not deliver to a direct
// caller: frame drops, background timer failures, removed callbacks. These
// errors are routed to the ErrorHandler provided at client creation.
type ClientError struct {
	Kind      ErrorKind
	MsgType   string // telemetry message type, if known
	Cause     error
	Raw       []byte // raw frame (for decode failures)
	Timestamp time.Time
}

func (e ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (type=%s)", e.Kind, e.Cause, e.MsgType)
	}
	return fmt.Sprintf("%s (type=%s)", e.Kind, e.MsgType)
}

func (e ClientError) Unwrap() error {
	return e.Cause
}

// ErrorHandler is called for every client-level error that cannot be returned
// to a direct caller. It MUST be provided when creating a client.
type ErrorHandler func(ClientError)

// LogErrors returns an ErrorHandler that logs all client errors to the given logger.
func LogErrors(logger *log.Logger) ErrorHandler {
	return func(e ClientError) {
		if e.Cause != nil {
			logger.Printf("[telemetry] %s: %v (type=%s)", e.Kind, e.Cause, e.MsgType)
		} else {
			logger.Printf("[telemetry] %s (type=%s)", e.Kind, e.MsgType)
		}
	}
}
