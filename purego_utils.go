//go:build darwin || linux

// Shared helpers for the purego binding.

package ndi

import (
	"os"
	"path/filepath"
	"runtime"
	"unsafe"
)

// goStringFromPtr converts a NUL-terminated C string to a Go string,
// reading at most limit bytes.
func goStringFromPtr(ptr uintptr, limit int) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for length < limit {
		if *(*byte)(unsafe.Add(p, length)) == 0 {
			break
		}
		length++
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// cString returns a pinned NUL-terminated copy of s, or 0 for an empty
// string. The pin is released by the caller's Pinner.
func cString(pin *runtime.Pinner, s string) uintptr {
	if s == "" {
		return 0
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	pin.Pin(&buf[0])
	return uintptr(unsafe.Pointer(&buf[0]))
}

// findModuleRoot walks up the directory tree from the current working directory
// to find the module root (directory containing go.mod).
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
