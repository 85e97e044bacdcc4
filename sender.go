package ndi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sender publishes an outbound source that receivers can discover.
type Sender struct {
	lib  *Library
	inst SendInstance
	name string

	mu     sync.Mutex
	closed bool
	sent   uint64
}

// NewSender creates an outbound source named cfg.Name.
func (l *Library) NewSender(cfg SenderConfig) (*Sender, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	inst, err := l.backend.SendCreate(cfg)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	s := &Sender{lib: l, inst: inst, name: cfg.Name}
	if err := l.track(s); err != nil {
		inst.Destroy()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewSender",
		"name":        cfg.Name,
		"clock_audio": cfg.ClockAudio,
		"clock_video": cfg.ClockVideo,
	}).Debug("sender created")
	return s, nil
}

// SendAudio submits one audio frame. With audio clocking enabled the call
// blocks until the frame is due. The frame may be reused once it returns.
func (s *Sender) SendAudio(ctx context.Context, frame *AudioFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.inst.SendAudio(frame)
	s.sent++
	return nil
}

// FramesSent returns the number of audio frames submitted.
func (s *Sender) FramesSent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Connections returns the number of receivers connected, waiting up to
// timeout for at least one.
func (s *Sender) Connections(timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.inst.Connections(timeout), nil
}

// Close withdraws the source. It is safe to call more than once.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.inst.Destroy()
	sent := s.sent
	s.mu.Unlock()

	s.lib.untrack(s)
	logrus.WithFields(logrus.Fields{
		"function":    "Sender.Close",
		"name":        s.name,
		"frames_sent": sent,
	}).Debug("sender destroyed")
	return nil
}
