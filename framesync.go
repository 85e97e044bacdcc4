package ndi

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// FrameSync gives pull-based access to the latest video and audio of a
// receiver, decoupled from the source's clock. Video is repeated or
// dropped and audio is resampled so that the caller can pull at its own
// rate.
//
// A captured frame stays valid until the next capture of the same kind,
// its Free call, or Close.
type FrameSync struct {
	recv *Receiver
	inst FrameSyncInstance

	mu           sync.Mutex
	closed       bool
	video        *VideoFrame
	videoRelease func()
	audio        *AudioFrame
	audioRelease func()
}

// NewFrameSync attaches a frame synchronizer to the receiver. Once attached,
// frames must be pulled through the FrameSync and not through Capture.
func (r *Receiver) NewFrameSync() (*FrameSync, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.sync != nil {
		return nil, fmt.Errorf("frame sync: %w: receiver already has one", ErrCreateFailed)
	}

	inst, err := r.lib.backend.FrameSyncCreate(r.inst)
	if err != nil {
		return nil, fmt.Errorf("frame sync: %w", err)
	}
	fs := &FrameSync{recv: r, inst: inst}
	r.sync = fs

	logrus.WithFields(logrus.Fields{
		"function": "NewFrameSync",
		"receiver": r.name,
	}).Debug("frame sync created")
	return fs, nil
}

// CaptureVideo returns the most recent video frame. Before the source has
// sent any video the returned frame is Empty.
func (fs *FrameSync) CaptureVideo(format FrameFormat) (*VideoFrame, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return nil, ErrClosed
	}
	fs.freeVideoLocked()

	frame, release := fs.inst.CaptureVideo(format)
	if frame == nil {
		frame = &VideoFrame{}
	}
	fs.video, fs.videoRelease = frame, release
	return frame, nil
}

// CaptureAudio returns exactly samples samples per channel at sampleRate
// and channels. Zero values ask for the source's native format.
func (fs *FrameSync) CaptureAudio(sampleRate, channels, samples int) (*AudioFrame, error) {
	if sampleRate < 0 || channels < 0 || samples < 0 {
		return nil, fmt.Errorf("%w: negative audio request", ErrInvalidFrame)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return nil, ErrClosed
	}
	fs.freeAudioLocked()

	frame, release := fs.inst.CaptureAudio(sampleRate, channels, samples)
	if frame == nil {
		frame = &AudioFrame{}
	}
	fs.audio, fs.audioRelease = frame, release
	return frame, nil
}

// FreeVideo releases a frame returned by CaptureVideo.
func (fs *FrameSync) FreeVideo(frame *VideoFrame) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if frame != nil && frame == fs.video {
		fs.freeVideoLocked()
	}
}

// FreeAudio releases a frame returned by CaptureAudio.
func (fs *FrameSync) FreeAudio(frame *AudioFrame) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if frame != nil && frame == fs.audio {
		fs.freeAudioLocked()
	}
}

func (fs *FrameSync) freeVideoLocked() {
	if fs.videoRelease != nil {
		fs.videoRelease()
	}
	fs.video, fs.videoRelease = nil, nil
}

func (fs *FrameSync) freeAudioLocked() {
	if fs.audioRelease != nil {
		fs.audioRelease()
	}
	fs.audio, fs.audioRelease = nil, nil
}

// AudioQueueDepth returns the number of audio samples buffered.
func (fs *FrameSync) AudioQueueDepth() (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return 0, ErrClosed
	}
	return fs.inst.AudioQueueDepth(), nil
}

// Close frees outstanding frames and destroys the frame sync. The receiver
// stays usable. It is safe to call more than once.
func (fs *FrameSync) Close() error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil
	}
	fs.closed = true
	fs.freeVideoLocked()
	fs.freeAudioLocked()
	fs.inst.Destroy()
	fs.mu.Unlock()

	fs.recv.mu.Lock()
	if fs.recv.sync == fs {
		fs.recv.sync = nil
	}
	fs.recv.mu.Unlock()
	return nil
}
