package scopewire

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStreamFormat            = errors.New("scopewire: invalid stream format")
	ErrUnexpectedMetadataRead         = errors.New("scopewire: unexpected metadata read")
	ErrBufferTooSmall                 = errors.New("scopewire: buffer too small")
	ErrObjectActivationFailed         = errors.New("scopewire: object activation failed")
	ErrInvalidUnknownExtensionBuffers = errors.New("scopewire: unknown data holds extension buffers")
	ErrInsufficientResources          = errors.New("scopewire: insufficient resources")
	ErrInvalidParameter               = errors.New("scopewire: invalid parameter")

	// ErrNoMoreUnknownBuffers is returned by Serializable.UnknownData when
	// nothing is stored for the requested scope.
	ErrNoMoreUnknownBuffers = errors.New("scopewire: no more unknown buffers")
)

// BufferTooSmallError reports the element count an array read needs.
// The stream is left positioned at the array's tag.
type BufferTooSmallError struct {
	Required int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("%v: need %d elements", ErrBufferTooSmall, e.Required)
}

func (e *BufferTooSmallError) Is(target error) bool { return target == ErrBufferTooSmall }

// Status is the non-error outcome of a read.
type Status uint8

const (
	StatusOK Status = iota
	// StatusScopeEnd means the writer produced no more data for the current
	// scope or object. The destination is left unchanged.
	StatusScopeEnd
)

func (s Status) String() string {
	if s == StatusScopeEnd {
		return "scope-end"
	}
	return "ok"
}

func formatError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidStreamFormat}, args...)...)
}

func metadataError(got, want TypeTag) error {
	return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMetadataRead, got, want)
}
