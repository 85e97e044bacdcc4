package ndi

import (
	"fmt"
	"math"
)

// DefaultReceiveReferenceLevel gives 20 dB of headroom above +4 dBu,
// the usual choice when converting received audio.
const DefaultReceiveReferenceLevel = 20

// ToInterleaved16 converts planar float audio to interleaved signed 16-bit.
//
// A float sample of 1.0 is +4 dBu; full 16-bit scale corresponds to
// referenceLevel dB above that. Out-of-range values clamp. dst.Data is
// reused when it has room; dst may be nil.
func ToInterleaved16(dst *AudioFrameInterleaved16, src *AudioFrame, referenceLevel int) (*AudioFrameInterleaved16, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if dst == nil {
		dst = &AudioFrameInterleaved16{}
	}

	n := src.Samples * src.Channels
	if cap(dst.Data) < n {
		dst.Data = make([]int16, n)
	}
	dst.Data = dst.Data[:n]
	dst.SampleRate = src.SampleRate
	dst.Channels = src.Channels
	dst.Samples = src.Samples
	dst.ReferenceLevel = referenceLevel
	dst.Timecode = src.Timecode

	scale := float64(math.MaxInt16) / math.Pow(10, float64(referenceLevel)/20)
	for ch := 0; ch < src.Channels; ch++ {
		in := src.Channel(ch)
		for i, v := range in {
			dst.Data[i*src.Channels+ch] = clamp16(float64(v) * scale)
		}
	}
	return dst, nil
}

func clamp16(v float64) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}

// FillSilence zeroes every channel of the frame.
func (f *AudioFrame) FillSilence() {
	for ch := 0; ch < f.Channels; ch++ {
		clear(f.Channel(ch))
	}
}

// ToneGenerator writes a continuous sine tone into planar frames. Phase
// carries over between calls so consecutive frames join without clicks.
type ToneGenerator struct {
	Frequency float64 // Hz
	Amplitude float64 // 0.0-1.0 of the +4 dBu reference

	phase float64
}

// NewToneGenerator creates a generator. Zero values fall back to 440 Hz at
// half amplitude.
func NewToneGenerator(frequency, amplitude float64) *ToneGenerator {
	if frequency <= 0 {
		frequency = 440
	}
	if amplitude <= 0 || amplitude > 1 {
		amplitude = 0.5
	}
	return &ToneGenerator{Frequency: frequency, Amplitude: amplitude}
}

// Fill writes the next Samples samples of the tone to every channel.
func (g *ToneGenerator) Fill(f *AudioFrame) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("tone: %w", err)
	}
	step := 2 * math.Pi * g.Frequency / float64(f.SampleRate)
	phase := g.phase
	for ch := 0; ch < f.Channels; ch++ {
		p := g.phase
		out := f.Channel(ch)
		for i := range out {
			out[i] = float32(g.Amplitude * math.Sin(p))
			p += step
		}
		phase = p
	}
	g.phase = math.Mod(phase, 2*math.Pi)
	return nil
}

// Interleave16 converts src with the runtime's converter when the backend
// has one and with ToInterleaved16 otherwise.
func (l *Library) Interleave16(dst *AudioFrameInterleaved16, src *AudioFrame, referenceLevel int) (*AudioFrameInterleaved16, error) {
	conv, ok := l.backend.(Interleaver)
	if !ok {
		return ToInterleaved16(dst, src, referenceLevel)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if dst == nil {
		dst = &AudioFrameInterleaved16{}
	}
	n := src.Samples * src.Channels
	if cap(dst.Data) < n {
		dst.Data = make([]int16, n)
	}
	dst.Data = dst.Data[:n]
	if err := conv.Interleave16(dst, src, referenceLevel); err != nil {
		return nil, fmt.Errorf("interleave: %w", err)
	}
	return dst, nil
}
