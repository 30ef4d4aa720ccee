package hybridstore

import "fmt"

// ErrorCode classifies the failure kinds enumerated in the engine's error
// handling design: device faults, on-disk corruption, codec failures and
// shutdown-time channel races.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	DeviceIO
	Codec
	IntegrityMagic
	IntegrityChecksum
	ChannelFull
	ChannelClosed
	Configuration
)

// Error is the engine's custom error, carrying a classification code and
// arbitrary caller context alongside the wrapped cause.
type Error[T any] struct {
	Code     ErrorCode
	Err      error
	UserData T
}

func (e Error[T]) Error() string {
	return fmt.Errorf("error %d: %w, user data: %v", e.Code, e.Err, e.UserData).Error()
}

func (e Error[T]) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given code and no extra user data.
func NewError(code ErrorCode, err error) Error[any] {
	return Error[any]{Code: code, Err: err}
}
