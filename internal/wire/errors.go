package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingPayload is returned when an envelope carries no payload for its log type.
	ErrMissingPayload = errors.New("wire: missing payload")
	// ErrUnknownLogType is returned for log_type values outside the known set.
	ErrUnknownLogType = errors.New("wire: unknown log type")
	// ErrUnknownFrame is returned for frames that are neither text nor binary.
	ErrUnknownFrame = errors.New("wire: unknown frame kind")
)

// DecodeError reports a single message that could not be decoded. It is
// always local to that message.
type DecodeError struct {
	Frame FrameKind
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame: %v", e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(kind FrameKind, err error) error {
	return &DecodeError{Frame: kind, Err: err}
}
