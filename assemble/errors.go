package assemble

import "fmt"

// ErrorCode is the fixed error surface the core can report, either
// synchronously from a verb call or asynchronously via an event sink
// callback. It is never wrapped in a Go error chain across that
// boundary — callers switch on the code.
type ErrorCode int

const (
	// NoError indicates a completed operation with no failure.
	NoError ErrorCode = iota
	// ErrTransportBufferFull is returned when the Transporter's queue has
	// no room for the invocations an operation needs.
	ErrTransportBufferFull
	// ErrTransportStopped is returned when the Transporter is not running.
	ErrTransportStopped
	// ErrNetworkError wraps a lower-layer network failure surfaced through
	// a DHT callback.
	ErrNetworkError
	// ErrDHTLiveNodesZero is returned when the kademlia layer reports no
	// live nodes at admission time.
	ErrDHTLiveNodesZero
	// ErrAssembleVersionError means a frame's "v" field was missing or had
	// the wrong length.
	ErrAssembleVersionError
	// ErrAssembleNameError means a frame's "n" field was missing, the
	// wrong length, or named an unknown frame kind.
	ErrAssembleNameError
	// ErrAssembleProtocolFormatError means a frame's "a" dictionary was
	// missing or its arguments had the wrong type or size.
	ErrAssembleProtocolFormatError
	// ErrAssembleProtocolVerMismatch means the frame name was recognized
	// but its major version differs from the one this build speaks.
	ErrAssembleProtocolVerMismatch
	// ErrBlobTooLarge is returned when a put or relay payload exceeds its
	// configured MTU.
	ErrBlobTooLarge
	// ErrPutResponseZero is the terminal error for a put record whose
	// every attempt returned a response count of zero.
	ErrPutResponseZero
	// ErrGetTooManyTimes is the fallback terminal error for a get that
	// ends without a payload and with no more specific code recorded. A
	// fetch whose retry budget runs out on decode failures reports that
	// decode failure's own ASSEMBLE_* code instead.
	ErrGetTooManyTimes
	// ErrEmptyBlobIndex means a decoded index record listed zero
	// segments.
	ErrEmptyBlobIndex
	// ErrRelayResponseZero is the terminal error for a relay whose send
	// callback reported no successful delivery nodes.
	ErrRelayResponseZero
)

var errorNames = map[ErrorCode]string{
	NoError:                         "NO_ERROR",
	ErrTransportBufferFull:          "TRANSPORT_BUFFER_FULL",
	ErrTransportStopped:             "TRANSPORT_STOPPED",
	ErrNetworkError:                 "NETWORK_ERROR",
	ErrDHTLiveNodesZero:             "DHT_LIVE_NODES_ZERO",
	ErrAssembleVersionError:         "ASSEMBLE_VERSION_ERROR",
	ErrAssembleNameError:            "ASSEMBLE_NAME_ERROR",
	ErrAssembleProtocolFormatError:  "ASSEMBLE_PROTOCOL_FORMAT_ERROR",
	ErrAssembleProtocolVerMismatch:  "ASSEMBLE_PROTOCOL_VER_MISMATCH",
	ErrBlobTooLarge:                 "BLOB_TOO_LARGE",
	ErrPutResponseZero:              "PUT_RESPONSE_ZERO",
	ErrGetTooManyTimes:              "GET_TOO_MANY_TIMES",
	ErrEmptyBlobIndex:               "EMPTY_BLOB_INDEX",
	ErrRelayResponseZero:            "RELAY_RESPONSE_ZERO",
}

// String renders the error code the way it is named in spec: an
// upper-snake-case token, suitable for log lines and metrics labels.
func (e ErrorCode) String() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_ERROR(%d)", int(e))
}

// Error implements the error interface so an ErrorCode can be returned
// anywhere an `error` is expected (e.g. from code paths shared with
// ordinary Go error handling), while still round-tripping through
// AsErrorCode for callers that want the typed value back.
func (e ErrorCode) Error() string {
	return e.String()
}

// IsError reports whether the code represents a failure.
func (e ErrorCode) IsError() bool {
	return e != NoError
}

// AsErrorCode extracts the ErrorCode carried by err, if any.
func AsErrorCode(err error) (ErrorCode, bool) {
	if err == nil {
		return NoError, false
	}
	code, ok := err.(ErrorCode)
	return code, ok
}
