package protocol

import "fmt"

// ProtocolVersionError is returned when a frame declares a version newer
// than this decoder understands. Frames from a newer protocol revision
// are never partially interpreted.
type ProtocolVersionError struct {
	Version uint8
}

func (e *ProtocolVersionError) Error() string {
	return fmt.Sprintf("unsupported protocol version %d (supported up to %d)", e.Version, Version)
}

// MalformedFrameError is returned when a frame's structure or JSON text
// segment cannot be parsed.
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return "malformed frame: " + e.Reason
}

// InvalidPayloadError is returned when a caller attaches binary data to a
// variant that does not carry one. This is a programming error, not a
// recoverable runtime condition.
type InvalidPayloadError struct {
	Type MsgType
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("binary data not allowed for message type %s", e.Type)
}
