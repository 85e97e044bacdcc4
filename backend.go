package ndi

import "time"

// ColorFormat selects the pixel layouts a receiver asks for.
type ColorFormat int

const (
	ColorFormatBGRXBGRA ColorFormat = 0   // BGRX without alpha, BGRA with
	ColorFormatUYVYBGRA ColorFormat = 1   // UYVY without alpha, BGRA with
	ColorFormatRGBXRGBA ColorFormat = 2   // RGBX without alpha, RGBA with
	ColorFormatUYVYRGBA ColorFormat = 3   // UYVY without alpha, RGBA with
	ColorFormatFastest  ColorFormat = 100 // Whatever decodes fastest
	ColorFormatBest     ColorFormat = 101 // Highest quality available
)

func (c ColorFormat) String() string {
	switch c {
	case ColorFormatBGRXBGRA:
		return "bgrx_bgra"
	case ColorFormatUYVYBGRA:
		return "uyvy_bgra"
	case ColorFormatRGBXRGBA:
		return "rgbx_rgba"
	case ColorFormatUYVYRGBA:
		return "uyvy_rgba"
	case ColorFormatFastest:
		return "fastest"
	case ColorFormatBest:
		return "best"
	default:
		return "unknown"
	}
}

// ParseColorFormat maps a name produced by ColorFormat.String back to
// its value.
func ParseColorFormat(s string) (ColorFormat, bool) {
	for _, c := range []ColorFormat{
		ColorFormatBGRXBGRA, ColorFormatUYVYBGRA, ColorFormatRGBXRGBA,
		ColorFormatUYVYRGBA, ColorFormatFastest, ColorFormatBest,
	} {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// Bandwidth selects how much of a source a receiver pulls.
type Bandwidth int

const (
	BandwidthMetadataOnly Bandwidth = -10
	BandwidthAudioOnly    Bandwidth = 10
	BandwidthLowest       Bandwidth = 0
	BandwidthHighest      Bandwidth = 100
)

func (b Bandwidth) String() string {
	switch b {
	case BandwidthMetadataOnly:
		return "metadata_only"
	case BandwidthAudioOnly:
		return "audio_only"
	case BandwidthLowest:
		return "lowest"
	case BandwidthHighest:
		return "highest"
	default:
		return "unknown"
	}
}

// ParseBandwidth maps a name produced by Bandwidth.String back to its value.
func ParseBandwidth(s string) (Bandwidth, bool) {
	for _, b := range []Bandwidth{BandwidthMetadataOnly, BandwidthAudioOnly, BandwidthLowest, BandwidthHighest} {
		if b.String() == s {
			return b, true
		}
	}
	return 0, false
}

// FinderConfig configures source discovery.
type FinderConfig struct {
	ShowLocalSources bool
	Groups           string // Comma separated, empty means the default group
	ExtraIPs         string // Comma separated addresses to query directly
}

// DefaultFinderConfig returns the library defaults.
func DefaultFinderConfig() FinderConfig {
	return FinderConfig{ShowLocalSources: true}
}

// ReceiverConfig configures a receiver.
type ReceiverConfig struct {
	Source           *Source // Connect on creation when set
	Name             string  // Receiver name shown to senders
	ColorFormat      ColorFormat
	Bandwidth        Bandwidth
	AllowVideoFields bool
}

// DefaultReceiverConfig returns the library defaults.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		ColorFormat:      ColorFormatUYVYBGRA,
		Bandwidth:        BandwidthHighest,
		AllowVideoFields: true,
	}
}

// SenderConfig configures an outbound source.
type SenderConfig struct {
	Name       string
	Groups     string
	ClockVideo bool // Pace SendVideo to the frame rate
	ClockAudio bool // Pace SendAudio to the sample rate
}

// Backend is the native surface the handle wrappers drive. Create calls
// return an error in place of a null handle.
type Backend interface {
	Initialize() error
	Destroy()
	Version() string

	FindCreate(cfg FinderConfig) (FindInstance, error)
	RecvCreate(cfg ReceiverConfig) (RecvInstance, error)
	FrameSyncCreate(recv RecvInstance) (FrameSyncInstance, error)
	SendCreate(cfg SenderConfig) (SendInstance, error)
}

// FindInstance is a live discovery handle.
type FindInstance interface {
	// WaitForSources blocks until the source set changes or the timeout
	// expires and reports whether it changed.
	WaitForSources(timeout time.Duration) bool

	// CurrentSources returns the sources known right now.
	CurrentSources() []Source

	Destroy()
}

// RecvInstance is a receive handle.
type RecvInstance interface {
	Connect(src *Source)

	// Capture blocks up to timeout for the next frame. The release func
	// frees library memory behind the frame and must be called exactly
	// once; it is a no-op for frames without payload.
	Capture(timeout time.Duration) (Frame, func())

	Connections() int
	Destroy()
}

// FrameSyncInstance is a frame synchronizer bound to a receive handle.
type FrameSyncInstance interface {
	// CaptureVideo returns the most recent video frame. The frame is
	// empty until the source has produced video.
	CaptureVideo(format FrameFormat) (*VideoFrame, func())

	// CaptureAudio returns exactly the requested number of samples,
	// resampled to the requested rate and channel count, padded with
	// silence when the source is behind.
	CaptureAudio(sampleRate, channels, samples int) (*AudioFrame, func())

	AudioQueueDepth() int
	Destroy()
}

// SendInstance is an outbound source.
type SendInstance interface {
	SendAudio(frame *AudioFrame)
	Connections(timeout time.Duration) int
	Destroy()
}

// Interleaver is implemented by backends that ship their own 16-bit
// audio converter. dst.Data is sized for src before the call.
type Interleaver interface {
	Interleave16(dst *AudioFrameInterleaved16, src *AudioFrame, referenceLevel int) error
}
