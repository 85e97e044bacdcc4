package ndi

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Library is an initialized instance of the NDI runtime. Handles created
// from it must be closed before it, and Close closes any that are still
// open, newest first.
type Library struct {
	backend Backend

	mu       sync.Mutex
	closed   bool
	children []handle
}

// handle is any wrapper whose lifetime is bounded by the Library.
type handle interface {
	Close() error
}

// Open initializes the runtime behind backend.
func Open(backend Backend) (*Library, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrNotAvailable)
	}
	if err := backend.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"version":  backend.Version(),
	}).Debug("NDI runtime initialized")

	return &Library{backend: backend}, nil
}

// Version returns the runtime version string.
func (l *Library) Version() string {
	return l.backend.Version()
}

// Close destroys every open handle and then the runtime. It is safe to
// call more than once.
func (l *Library) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	children := l.children
	l.children = nil
	l.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Close()
	}
	l.backend.Destroy()

	logrus.WithField("function", "Library.Close").Debug("NDI runtime destroyed")
	return nil
}

// track registers h so Close can release it. It fails when the library is
// already closed.
func (l *Library) track(h handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.children = append(l.children, h)
	return nil
}

func (l *Library) untrack(h handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.children {
		if c == h {
			l.children = append(l.children[:i], l.children[i+1:]...)
			return
		}
	}
}

func (l *Library) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
