package ndi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Receiver consumes frames from one source.
//
// A frame returned by Capture stays valid until it is passed to Free, the
// next Capture, or Close, whichever comes first. The receiver frees it
// itself in the latter two cases.
type Receiver struct {
	lib  *Library
	inst RecvInstance
	name string

	mu      sync.Mutex
	closed  bool
	pending Frame
	release func()
	sync    *FrameSync
}

// NewReceiver creates a receiver. When cfg.Source is set it connects
// immediately.
func (l *Library) NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	inst, err := l.backend.RecvCreate(cfg)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	r := &Receiver{lib: l, inst: inst, name: cfg.Name}
	if err := l.track(r); err != nil {
		inst.Destroy()
		return nil, err
	}

	fields := logrus.Fields{
		"function":     "NewReceiver",
		"name":         cfg.Name,
		"color_format": cfg.ColorFormat.String(),
		"bandwidth":    cfg.Bandwidth.String(),
	}
	if cfg.Source != nil {
		fields["source"] = cfg.Source.Name
	}
	logrus.WithFields(fields).Debug("receiver created")
	return r, nil
}

// Connect switches the receiver to src. A nil src disconnects.
func (r *Receiver) Connect(src *Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.inst.Connect(src)

	name := ""
	if src != nil {
		name = src.Name
	}
	logrus.WithFields(logrus.Fields{
		"function": "Receiver.Connect",
		"receiver": r.name,
		"source":   name,
	}).Debug("receiver connected")
	return nil
}

// Capture waits up to timeout for the next frame. A timeout yields
// NoFrame and a nil error. The previously captured frame, if not yet
// freed, is freed first.
func (r *Receiver) Capture(ctx context.Context, timeout time.Duration) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	r.releaseLocked()

	frame, release := r.inst.Capture(timeout)
	if frame == nil {
		frame = NoFrame{}
	}
	if release != nil {
		r.pending = frame
		r.release = release
	}
	return frame, nil
}

// Free releases a frame returned by Capture. Freeing a frame that is not
// the outstanding one, or freeing twice, does nothing.
func (r *Receiver) Free(frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil || frame != r.pending {
		return
	}
	r.releaseLocked()
}

func (r *Receiver) releaseLocked() {
	if r.release != nil {
		r.release()
	}
	r.pending = nil
	r.release = nil
}

// Connections returns the number of active connections.
func (r *Receiver) Connections() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	return r.inst.Connections(), nil
}

// Close frees any outstanding frame, closes an open frame sync and
// destroys the receiver. It is safe to call more than once.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	fs := r.sync
	r.mu.Unlock()

	// The frame sync holds the receive handle and must go first.
	if fs != nil {
		fs.Close()
	}

	r.mu.Lock()
	r.releaseLocked()
	r.inst.Destroy()
	r.mu.Unlock()

	r.lib.untrack(r)
	logrus.WithFields(logrus.Fields{
		"function": "Receiver.Close",
		"receiver": r.name,
	}).Debug("receiver destroyed")
	return nil
}
