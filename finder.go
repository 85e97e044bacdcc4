package ndi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Finder discovers sources on the network.
type Finder struct {
	lib  *Library
	inst FindInstance

	mu     sync.Mutex
	closed bool
}

// NewFinder starts discovery.
func (l *Library) NewFinder(cfg FinderConfig) (*Finder, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	inst, err := l.backend.FindCreate(cfg)
	if err != nil {
		return nil, fmt.Errorf("finder: %w", err)
	}
	f := &Finder{lib: l, inst: inst}
	if err := l.track(f); err != nil {
		inst.Destroy()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewFinder",
		"show_local": cfg.ShowLocalSources,
		"groups":     cfg.Groups,
		"extra_ips":  cfg.ExtraIPs,
	}).Debug("finder created")
	return f, nil
}

// WaitForSources blocks until the set of sources changes or timeout
// expires. The context is checked before blocking; the native wait itself
// is not interruptible, so keep timeout short when cancellation matters.
func (f *Finder) WaitForSources(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, ErrClosed
	}
	return f.inst.WaitForSources(timeout), nil
}

// Sources returns the sources currently known. The slice is owned by the
// caller.
func (f *Finder) Sources() ([]Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	src := f.inst.CurrentSources()
	out := make([]Source, len(src))
	copy(out, src)
	return out, nil
}

// Close stops discovery. It is safe to call more than once.
func (f *Finder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.inst.Destroy()
	f.mu.Unlock()

	f.lib.untrack(f)
	return nil
}

// WaitForAnySource polls finder every interval until at least one source
// is known or ctx is done. onPoll, when non-nil, runs before every wait.
func WaitForAnySource(ctx context.Context, finder *Finder, interval time.Duration, onPoll func()) ([]Source, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll()
		}
		if _, err := finder.WaitForSources(ctx, interval); err != nil {
			return nil, err
		}
		sources, err := finder.Sources()
		if err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			return sources, nil
		}
	}
}
