//go:build !darwin && !linux

package ndi

import "fmt"

// IsAvailable reports whether the NDI runtime can be loaded.
func IsAvailable() bool { return false }

// NewNativeBackend is not supported on this platform.
func NewNativeBackend(libPath string) (Backend, error) {
	return nil, fmt.Errorf("%w: no runtime loader for this platform", ErrNotAvailable)
}
