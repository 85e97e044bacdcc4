package ndi

import "errors"

var (
	// ErrNotAvailable is returned when the native library cannot be loaded.
	ErrNotAvailable = errors.New("ndi: library not available")

	// ErrInitFailed is returned when the library refuses to initialize,
	// typically because the CPU is not supported.
	ErrInitFailed = errors.New("ndi: failed to initialize")

	// ErrCreateFailed is returned when a create call yields a null handle.
	ErrCreateFailed = errors.New("ndi: failed to create instance")

	// ErrClosed is returned when a handle is used after Close.
	ErrClosed = errors.New("ndi: instance closed")

	// ErrInvalidFrame is returned for frames whose geometry does not match
	// their buffer.
	ErrInvalidFrame = errors.New("ndi: invalid frame")

	// ErrNoSources is returned when a source was required but none was found.
	ErrNoSources = errors.New("ndi: no sources found")
)
