package loopback

import (
	"fmt"
	"sync"

	"github.com/Satya110584/ndi"
)

// Formats used when a frame sync is asked for the source's native audio
// format before any audio has arrived.
const (
	defaultSampleRate = 48000
	defaultChannels   = 2
	defaultSamples    = 1600
)

// FrameSyncCreate implements ndi.Backend.
func (n *Network) FrameSyncCreate(recv ndi.RecvInstance) (ndi.FrameSyncInstance, error) {
	r, ok := recv.(*receiver)
	if !ok {
		return nil, fmt.Errorf("%w: frame sync needs a loopback receiver", ndi.ErrCreateFailed)
	}
	if err := n.create(KindFrameSync); err != nil {
		return nil, err
	}
	return &frameSync{net: n, recv: r}, nil
}

// frameSync drains its receiver on every capture, keeping the newest video
// frame and queueing audio per channel.
type frameSync struct {
	net  *Network
	recv *receiver

	mu         sync.Mutex
	video      *ndi.VideoFrame
	audio      [][]float32
	sampleRate int
}

func (fs *frameSync) drainLocked() {
	for {
		select {
		case frame := <-fs.recv.queue:
			switch f := frame.(type) {
			case *ndi.VideoFrame:
				fs.video = f
			case *ndi.AudioFrame:
				fs.queueAudioLocked(f)
			}
		default:
			return
		}
	}
}

func (fs *frameSync) queueAudioLocked(f *ndi.AudioFrame) {
	if len(fs.audio) != f.Channels || fs.sampleRate != f.SampleRate {
		fs.audio = make([][]float32, f.Channels)
		fs.sampleRate = f.SampleRate
	}
	for ch := range fs.audio {
		fs.audio[ch] = append(fs.audio[ch], f.Channel(ch)...)
	}
}

func (fs *frameSync) CaptureVideo(format ndi.FrameFormat) (*ndi.VideoFrame, func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.drainLocked()

	if fs.video == nil {
		return &ndi.VideoFrame{}, func() {}
	}
	// The latest frame is repeated until a newer one arrives.
	frame := fs.video.Clone()
	frame.Format = format
	fs.net.frameOut(1)
	var once sync.Once
	return frame, func() { once.Do(func() { fs.net.frameOut(-1) }) }
}

// CaptureAudio returns queued audio, mapping channels by index and padding
// with silence. It does not resample.
func (fs *frameSync) CaptureAudio(sampleRate, channels, samples int) (*ndi.AudioFrame, func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.drainLocked()

	if sampleRate == 0 {
		sampleRate = fs.sampleRate
		if sampleRate == 0 {
			sampleRate = defaultSampleRate
		}
	}
	if channels == 0 {
		channels = len(fs.audio)
		if channels == 0 {
			channels = defaultChannels
		}
	}
	if samples == 0 {
		samples = defaultSamples
	}

	frame := ndi.NewAudioFrame(sampleRate, channels, samples)
	if len(fs.audio) > 0 {
		for ch := 0; ch < channels; ch++ {
			copy(frame.Channel(ch), fs.audio[ch%len(fs.audio)])
		}
		for ch := range fs.audio {
			n := min(samples, len(fs.audio[ch]))
			fs.audio[ch] = fs.audio[ch][n:]
		}
	}

	fs.net.frameOut(1)
	var once sync.Once
	return frame, func() { once.Do(func() { fs.net.frameOut(-1) }) }
}

func (fs *frameSync) AudioQueueDepth() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.drainLocked()
	if len(fs.audio) == 0 {
		return 0
	}
	return len(fs.audio[0])
}

func (fs *frameSync) Destroy() { fs.net.release(KindFrameSync) }
