//go:build darwin || linux

package ndi

import (
	"context"
	"runtime"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCStructLayout(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("layouts are checked for 64-bit targets")
	}

	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"NDIlib_source_t", unsafe.Sizeof(cSource{}), 16},
		{"NDIlib_find_create_t", unsafe.Sizeof(cFindCreate{}), 24},
		{"NDIlib_recv_create_v3_t", unsafe.Sizeof(cRecvCreateV3{}), 40},
		{"NDIlib_video_frame_v2_t", unsafe.Sizeof(cVideoFrameV2{}), 72},
		{"NDIlib_audio_frame_v2_t", unsafe.Sizeof(cAudioFrameV2{}), 56},
		{"NDIlib_metadata_frame_t", unsafe.Sizeof(cMetadataFrame{}), 24},
		{"NDIlib_audio_frame_interleaved_16s_t", unsafe.Sizeof(cAudioInterleaved16{}), 40},
		{"NDIlib_send_create_t", unsafe.Sizeof(cSendCreate{}), 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.Equal(t, uintptr(32), unsafe.Offsetof(cVideoFrameV2{}.timecode))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(cAudioFrameV2{}.timecode))
	assert.Equal(t, uintptr(28), unsafe.Offsetof(cAudioInterleaved16{}.referenceLevel))
}

func TestVideoDataSize(t *testing.T) {
	tests := []struct {
		fourCC FourCC
		want   int
	}{
		{FourCCUYVY, 8 * 4},
		{FourCCBGRA, 8 * 4},
		{FourCCUYVA, 8*4 + 4*4},
		{FourCCP216, 8 * 4 * 2},
		{FourCCPA16, 8 * 4 * 3},
		{FourCCNV12, 8 * 4 * 3 / 2},
		{FourCCI420, 8 * 4 * 3 / 2},
	}

	for _, tt := range tests {
		t.Run(tt.fourCC.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, videoDataSize(tt.fourCC, 8, 4, 4))
		})
	}
	assert.Zero(t, videoDataSize(FourCCUYVY, 0, 4, 4))
}

func TestCStringRoundTrip(t *testing.T) {
	var pin runtime.Pinner
	defer pin.Unpin()

	p := cString(&pin, "NDI source")
	require.NotZero(t, p)
	assert.Equal(t, "NDI source", goStringFromPtr(p, 256))
	assert.Equal(t, "NDI", goStringFromPtr(p, 3))
	assert.Zero(t, cString(&pin, ""))
	assert.Empty(t, goStringFromPtr(0, 10))
}

func TestGoAudioFrame(t *testing.T) {
	var pin runtime.Pinner
	defer pin.Unpin()

	samples := []float32{1, 2, 3, 4, 5, 6}
	pin.Pin(&samples[0])
	c := &cAudioFrameV2{
		sampleRate:    48000,
		channels:      2,
		samples:       3,
		channelStride: 12,
		pData:         uintptr(unsafe.Pointer(&samples[0])),
	}

	f := goAudioFrame(c)
	require.NoError(t, f.Validate())
	assert.Equal(t, []float32{4, 5, 6}, f.Channel(1))
}

func TestNativeBackend(t *testing.T) {
	if !IsAvailable() {
		t.Skip("NDI runtime not installed")
	}

	backend, err := NewNativeBackend("")
	require.NoError(t, err)
	lib, err := Open(backend)
	require.NoError(t, err)
	defer lib.Close()
	assert.NotEmpty(t, lib.Version())

	finder, err := lib.NewFinder(DefaultFinderConfig())
	require.NoError(t, err)
	_, err = finder.WaitForSources(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	_, err = finder.Sources()
	require.NoError(t, err)

	sender, err := lib.NewSender(SenderConfig{Name: "ndi test tone"})
	require.NoError(t, err)
	frame := NewAudioFrame(48000, 2, 480)
	require.NoError(t, NewToneGenerator(440, 0.1).Fill(frame))
	require.NoError(t, sender.SendAudio(context.Background(), frame))

	pcm, err := lib.Interleave16(nil, frame, DefaultReceiveReferenceLevel)
	require.NoError(t, err)
	assert.Len(t, pcm.Data, 960)
}
