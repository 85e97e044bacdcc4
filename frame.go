// Core frame and source types shared by every backend.
package ndi

import (
	"fmt"
	"time"
)

// Source is a media source seen on the network.
type Source struct {
	Name string // Canonical "HOST (Source)" name
	URL  string // Address the library uses to connect (may be empty)
}

func (s Source) String() string {
	return s.Name
}

// FrameType tags the result of a capture call.
type FrameType int

const (
	FrameTypeNone         FrameType = 0   // Timed out, nothing arrived
	FrameTypeVideo        FrameType = 1   // Video frame
	FrameTypeAudio        FrameType = 2   // Audio frame
	FrameTypeMetadata     FrameType = 3   // Metadata frame
	FrameTypeError        FrameType = 4   // Connection lost
	FrameTypeStatusChange FrameType = 100 // Receiver settings changed
	FrameTypeSourceChange FrameType = 101 // Connected source changed
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeNone:
		return "None"
	case FrameTypeVideo:
		return "Video"
	case FrameTypeAudio:
		return "Audio"
	case FrameTypeMetadata:
		return "Metadata"
	case FrameTypeError:
		return "Error"
	case FrameTypeStatusChange:
		return "StatusChange"
	case FrameTypeSourceChange:
		return "SourceChange"
	default:
		return "Unknown"
	}
}

// Frame is the result of a receive capture. The concrete type is one of
// NoFrame, *VideoFrame, *AudioFrame, *MetadataFrame, StatusChange,
// SourceChange or ConnectionLost.
type Frame interface {
	Type() FrameType
	isFrame()
}

// NoFrame is returned when a capture timed out.
type NoFrame struct{}

// StatusChange reports that the receiver's connection status changed.
type StatusChange struct{}

// SourceChange reports that the receiver switched to another source.
type SourceChange struct{}

// ConnectionLost reports that the receiver lost its source.
type ConnectionLost struct{}

func (NoFrame) Type() FrameType        { return FrameTypeNone }
func (StatusChange) Type() FrameType   { return FrameTypeStatusChange }
func (SourceChange) Type() FrameType   { return FrameTypeSourceChange }
func (ConnectionLost) Type() FrameType { return FrameTypeError }
func (*VideoFrame) Type() FrameType    { return FrameTypeVideo }
func (*AudioFrame) Type() FrameType    { return FrameTypeAudio }
func (*MetadataFrame) Type() FrameType { return FrameTypeMetadata }

func (NoFrame) isFrame()        {}
func (StatusChange) isFrame()   {}
func (SourceChange) isFrame()   {}
func (ConnectionLost) isFrame() {}
func (*VideoFrame) isFrame()    {}
func (*AudioFrame) isFrame()    {}
func (*MetadataFrame) isFrame() {}

// FourCC identifies a video pixel layout.
type FourCC uint32

func makeFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	FourCCUYVY = makeFourCC('U', 'Y', 'V', 'Y') // YUV 4:2:2, 8 bit
	FourCCUYVA = makeFourCC('U', 'Y', 'V', 'A') // UYVY followed by an alpha plane
	FourCCP216 = makeFourCC('P', '2', '1', '6') // YUV 4:2:2 semi-planar, 16 bit
	FourCCPA16 = makeFourCC('P', 'A', '1', '6') // P216 plus alpha plane
	FourCCYV12 = makeFourCC('Y', 'V', '1', '2') // YUV 4:2:0 planar, V before U
	FourCCI420 = makeFourCC('I', '4', '2', '0') // YUV 4:2:0 planar
	FourCCNV12 = makeFourCC('N', 'V', '1', '2') // YUV 4:2:0 semi-planar
	FourCCBGRA = makeFourCC('B', 'G', 'R', 'A') // Packed BGRA
	FourCCBGRX = makeFourCC('B', 'G', 'R', 'X') // Packed BGR, alpha ignored
	FourCCRGBA = makeFourCC('R', 'G', 'B', 'A') // Packed RGBA
	FourCCRGBX = makeFourCC('R', 'G', 'B', 'X') // Packed RGB, alpha ignored
)

func (f FourCC) String() string {
	if f == 0 {
		return "Unknown"
	}
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return string(b)
}

// FrameFormat describes how a video frame maps to fields.
type FrameFormat int

const (
	FrameFormatInterleaved FrameFormat = 0 // Two interleaved fields
	FrameFormatProgressive FrameFormat = 1 // Progressive frame
	FrameFormatField0      FrameFormat = 2 // Even field only
	FrameFormatField1      FrameFormat = 3 // Odd field only
)

func (f FrameFormat) String() string {
	switch f {
	case FrameFormatInterleaved:
		return "Interleaved"
	case FrameFormatProgressive:
		return "Progressive"
	case FrameFormatField0:
		return "Field0"
	case FrameFormatField1:
		return "Field1"
	default:
		return "Unknown"
	}
}

// VideoFrame is one received video frame.
// Data may alias library-owned memory: it is valid until the frame is
// freed (explicitly or by the next capture). Use Clone to keep it.
type VideoFrame struct {
	Width       int
	Height      int
	FourCC      FourCC
	FrameRateN  int
	FrameRateD  int
	AspectRatio float32 // 0 means square pixels
	Format      FrameFormat
	Timecode    int64 // 100ns units
	Data        []byte
	Stride      int // Line stride in bytes
	Metadata    string
	Timestamp   int64 // 100ns units, 0 when not provided
}

// FrameRate returns the frame rate as a float, or 0 when unknown.
func (f *VideoFrame) FrameRate() float64 {
	if f.FrameRateD == 0 {
		return 0
	}
	return float64(f.FrameRateN) / float64(f.FrameRateD)
}

// Empty reports whether the frame carries no pixel data. A frame sync
// returns empty frames until its source has produced video.
func (f *VideoFrame) Empty() bool {
	return len(f.Data) == 0
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := *f
	if f.Data != nil {
		clone.Data = make([]byte, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return &clone
}

// AudioFrame is planar 32-bit float audio. Channel i starts at
// Data[i*ChannelStride/4] and holds Samples values.
type AudioFrame struct {
	SampleRate    int
	Channels      int
	Samples       int // Samples per channel
	ChannelStride int // Bytes between channel starts
	Timecode      int64
	Data          []float32
	Metadata      string
	Timestamp     int64
}

// NewAudioFrame allocates a tightly packed planar frame.
func NewAudioFrame(sampleRate, channels, samples int) *AudioFrame {
	return &AudioFrame{
		SampleRate:    sampleRate,
		Channels:      channels,
		Samples:       samples,
		ChannelStride: samples * 4,
		Data:          make([]float32, channels*samples),
	}
}

// Channel returns the samples of channel i.
func (f *AudioFrame) Channel(i int) []float32 {
	if i < 0 || i >= f.Channels {
		return nil
	}
	start := i * f.ChannelStride / 4
	end := start + f.Samples
	if end > len(f.Data) {
		return nil
	}
	return f.Data[start:end]
}

// Duration returns the play time of the frame.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples) * time.Second / time.Duration(f.SampleRate)
}

// Validate checks the frame geometry against its buffer.
func (f *AudioFrame) Validate() error {
	if f.Channels <= 0 || f.Samples <= 0 || f.SampleRate <= 0 {
		return fmt.Errorf("%w: %d channels, %d samples at %d Hz", ErrInvalidFrame, f.Channels, f.Samples, f.SampleRate)
	}
	if f.ChannelStride < f.Samples*4 || f.ChannelStride%4 != 0 {
		return fmt.Errorf("%w: channel stride %d for %d samples", ErrInvalidFrame, f.ChannelStride, f.Samples)
	}
	need := (f.Channels-1)*f.ChannelStride/4 + f.Samples
	if len(f.Data) < need {
		return fmt.Errorf("%w: buffer holds %d samples, need %d", ErrInvalidFrame, len(f.Data), need)
	}
	return nil
}

// Clone creates a deep copy of the audio frame.
func (f *AudioFrame) Clone() *AudioFrame {
	clone := *f
	if f.Data != nil {
		clone.Data = make([]float32, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return &clone
}

// MetadataFrame carries an XML metadata string.
type MetadataFrame struct {
	Data     string
	Timecode int64
}

// Clone creates a copy of the metadata frame.
func (f *MetadataFrame) Clone() *MetadataFrame {
	clone := *f
	return &clone
}

// AudioFrameInterleaved16 is interleaved signed 16-bit audio.
type AudioFrameInterleaved16 struct {
	SampleRate     int
	Channels       int
	Samples        int
	ReferenceLevel int // dB of headroom above +4 dBu at full scale
	Timecode       int64
	Data           []int16 // Samples*Channels values, interleaved
}
