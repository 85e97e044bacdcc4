package ndi_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satya110584/ndi"
	"github.com/Satya110584/ndi/loopback"
)

func openLoopback(t *testing.T) (*ndi.Library, *loopback.Network) {
	t.Helper()
	net := loopback.New()
	lib, err := ndi.Open(net)
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })
	return lib, net
}

// assertReleased checks that every handle and frame was given back.
func assertReleased(t *testing.T, net *loopback.Network) {
	t.Helper()
	st := net.Stats()
	for _, k := range []loopback.Kind{loopback.KindFind, loopback.KindRecv, loopback.KindFrameSync, loopback.KindSend} {
		assert.Zero(t, st.Live(k), "live %s handles", k)
	}
	assert.Zero(t, st.Outstanding, "outstanding frames")
}

func TestOpen(t *testing.T) {
	net := loopback.New()
	lib, err := ndi.Open(net)
	require.NoError(t, err)
	assert.Equal(t, "loopback 1.0", lib.Version())

	require.NoError(t, lib.Close())
	require.NoError(t, lib.Close())

	st := net.Stats()
	assert.Equal(t, 1, st.Initialized)
	assert.Equal(t, 1, st.Destroyed, "destroy runs exactly once")
}

func TestOpen_Failures(t *testing.T) {
	t.Run("nil backend", func(t *testing.T) {
		_, err := ndi.Open(nil)
		assert.ErrorIs(t, err, ndi.ErrNotAvailable)
	})

	t.Run("initialize refused", func(t *testing.T) {
		net := loopback.New()
		net.FailInitialize(true)
		_, err := ndi.Open(net)
		assert.ErrorIs(t, err, ndi.ErrInitFailed)
		assert.Zero(t, net.Stats().Destroyed, "nothing to destroy when initialize failed")
	})
}

func TestCreateFailures(t *testing.T) {
	tests := []struct {
		kind   loopback.Kind
		create func(lib *ndi.Library) error
	}{
		{loopback.KindFind, func(lib *ndi.Library) error {
			_, err := lib.NewFinder(ndi.DefaultFinderConfig())
			return err
		}},
		{loopback.KindRecv, func(lib *ndi.Library) error {
			_, err := lib.NewReceiver(ndi.DefaultReceiverConfig())
			return err
		}},
		{loopback.KindSend, func(lib *ndi.Library) error {
			_, err := lib.NewSender(ndi.SenderConfig{Name: "out"})
			return err
		}},
		{loopback.KindFrameSync, func(lib *ndi.Library) error {
			recv, err := lib.NewReceiver(ndi.DefaultReceiverConfig())
			if err != nil {
				return err
			}
			_, err = recv.NewFrameSync()
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			lib, net := openLoopback(t)
			net.FailCreate(tt.kind, true)

			err := tt.create(lib)
			assert.ErrorIs(t, err, ndi.ErrCreateFailed)

			require.NoError(t, lib.Close())
			assertReleased(t, net)
		})
	}
}

func TestUseAfterClose(t *testing.T) {
	lib, net := openLoopback(t)
	ctx := context.Background()

	finder, err := lib.NewFinder(ndi.DefaultFinderConfig())
	require.NoError(t, err)
	recv, err := lib.NewReceiver(ndi.DefaultReceiverConfig())
	require.NoError(t, err)
	sender, err := lib.NewSender(ndi.SenderConfig{Name: "out"})
	require.NoError(t, err)

	require.NoError(t, finder.Close())
	require.NoError(t, recv.Close())
	require.NoError(t, sender.Close())

	_, err = finder.WaitForSources(ctx, time.Millisecond)
	assert.ErrorIs(t, err, ndi.ErrClosed)
	_, err = finder.Sources()
	assert.ErrorIs(t, err, ndi.ErrClosed)
	_, err = recv.Capture(ctx, time.Millisecond)
	assert.ErrorIs(t, err, ndi.ErrClosed)
	assert.ErrorIs(t, recv.Connect(nil), ndi.ErrClosed)
	_, err = recv.NewFrameSync()
	assert.ErrorIs(t, err, ndi.ErrClosed)
	assert.ErrorIs(t, sender.SendAudio(ctx, ndi.NewAudioFrame(48000, 1, 16)), ndi.ErrClosed)

	// Closing again is a no-op.
	require.NoError(t, finder.Close())
	require.NoError(t, recv.Close())
	require.NoError(t, sender.Close())
	assertReleased(t, net)

	require.NoError(t, lib.Close())
	_, err = lib.NewFinder(ndi.DefaultFinderConfig())
	assert.ErrorIs(t, err, ndi.ErrClosed)
	_, err = lib.NewReceiver(ndi.DefaultReceiverConfig())
	assert.ErrorIs(t, err, ndi.ErrClosed)
	_, err = lib.NewSender(ndi.SenderConfig{})
	assert.ErrorIs(t, err, ndi.ErrClosed)
}

func TestLibraryClose_ReleasesChildren(t *testing.T) {
	net := loopback.New()
	lib, err := ndi.Open(net)
	require.NoError(t, err)

	feed := net.AddSource("Camera")
	src := feed.Source()

	_, err = lib.NewFinder(ndi.DefaultFinderConfig())
	require.NoError(t, err)
	cfg := ndi.DefaultReceiverConfig()
	cfg.Source = &src
	recv, err := lib.NewReceiver(cfg)
	require.NoError(t, err)
	fs, err := recv.NewFrameSync()
	require.NoError(t, err)
	_, err = lib.NewSender(ndi.SenderConfig{Name: "out"})
	require.NoError(t, err)

	feed.Video(&ndi.VideoFrame{Width: 2, Height: 2, Data: make([]byte, 8), Stride: 4})
	_, err = fs.CaptureVideo(ndi.FrameFormatProgressive)
	require.NoError(t, err)
	assert.Equal(t, 1, net.Stats().Outstanding)

	require.NoError(t, lib.Close())
	assertReleased(t, net)
	assert.Equal(t, 1, net.Stats().Destroyed)

	_, err = fs.CaptureAudio(0, 0, 0)
	assert.ErrorIs(t, err, ndi.ErrClosed)
}

func TestFinder(t *testing.T) {
	lib, net := openLoopback(t)
	ctx := context.Background()

	finder, err := lib.NewFinder(ndi.DefaultFinderConfig())
	require.NoError(t, err)

	changed, err := finder.WaitForSources(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, changed)

	net.AddSource("B")
	net.AddSource("A")

	changed, err = finder.WaitForSources(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, changed)

	sources, err := finder.Sources()
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "LOOPBACK (A)", sources[0].Name)
	assert.Equal(t, "LOOPBACK (B)", sources[1].Name)

	// The caller owns the returned slice.
	sources[0].Name = "changed"
	again, err := finder.Sources()
	require.NoError(t, err)
	assert.Equal(t, "LOOPBACK (A)", again[0].Name)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = finder.WaitForSources(cancelled, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForAnySource(t *testing.T) {
	t.Run("finds late source", func(t *testing.T) {
		lib, net := openLoopback(t)
		finder, err := lib.NewFinder(ndi.DefaultFinderConfig())
		require.NoError(t, err)

		polls := 0
		go func() {
			time.Sleep(30 * time.Millisecond)
			net.AddSource("Late")
		}()

		sources, err := ndi.WaitForAnySource(context.Background(), finder, 10*time.Millisecond, func() { polls++ })
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, "LOOPBACK (Late)", sources[0].Name)
		assert.GreaterOrEqual(t, polls, 1)
	})

	t.Run("cancelled", func(t *testing.T) {
		lib, _ := openLoopback(t)
		finder, err := lib.NewFinder(ndi.DefaultFinderConfig())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err = ndi.WaitForAnySource(ctx, finder, 5*time.Millisecond, nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestReceiver_CaptureAndFree(t *testing.T) {
	lib, net := openLoopback(t)
	ctx := context.Background()
	feed := net.AddSource("Camera")
	src := feed.Source()

	recv, err := lib.NewReceiver(ndi.DefaultReceiverConfig())
	require.NoError(t, err)
	require.NoError(t, recv.Connect(&src))

	conns, err := recv.Connections()
	require.NoError(t, err)
	assert.Equal(t, 1, conns)
	assert.Equal(t, 1, feed.Connections())

	frame, err := recv.Capture(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ndi.NoFrame{}, frame)

	feed.Video(&ndi.VideoFrame{Width: 4, Height: 2, FourCC: ndi.FourCCUYVY, Stride: 8, Data: make([]byte, 16)})
	feed.Audio(ndi.NewAudioFrame(48000, 2, 480))
	feed.Metadata("<hello/>")
	feed.StatusChange()

	frame, err = recv.Capture(ctx, time.Second)
	require.NoError(t, err)
	video, ok := frame.(*ndi.VideoFrame)
	require.True(t, ok, "got %T", frame)
	assert.Equal(t, 4, video.Width)
	assert.Equal(t, 1, net.Stats().Outstanding)

	// The next capture frees the previous frame.
	frame, err = recv.Capture(ctx, time.Second)
	require.NoError(t, err)
	audio, ok := frame.(*ndi.AudioFrame)
	require.True(t, ok, "got %T", frame)
	assert.Equal(t, 480, audio.Samples)
	assert.Equal(t, 1, net.Stats().Outstanding)

	recv.Free(audio)
	assert.Zero(t, net.Stats().Outstanding)
	recv.Free(audio)
	recv.Free(video)
	assert.Zero(t, net.Stats().Outstanding, "double free is a no-op")

	frame, err = recv.Capture(ctx, time.Second)
	require.NoError(t, err)
	meta, ok := frame.(*ndi.MetadataFrame)
	require.True(t, ok, "got %T", frame)
	assert.Equal(t, "<hello/>", meta.Data)

	frame, err = recv.Capture(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ndi.StatusChange{}, frame)
	assert.Zero(t, net.Stats().Outstanding)

	feed.Remove()
	frame, err = recv.Capture(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ndi.ConnectionLost{}, frame)

	require.NoError(t, recv.Close())
	assertReleased(t, net)
}

func TestReceiver_CloseFreesPending(t *testing.T) {
	lib, net := openLoopback(t)
	feed := net.AddSource("Camera")
	src := feed.Source()

	cfg := ndi.DefaultReceiverConfig()
	cfg.Source = &src
	recv, err := lib.NewReceiver(cfg)
	require.NoError(t, err)

	feed.Audio(ndi.NewAudioFrame(48000, 1, 64))
	_, err = recv.Capture(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, net.Stats().Outstanding)

	require.NoError(t, recv.Close())
	assertReleased(t, net)
	assert.Zero(t, feed.Connections())
}

func TestReceiver_CaptureCancelled(t *testing.T) {
	lib, _ := openLoopback(t)
	recv, err := lib.NewReceiver(ndi.DefaultReceiverConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = recv.Capture(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrameSync(t *testing.T) {
	lib, net := openLoopback(t)
	feed := net.AddSource("Camera")
	src := feed.Source()

	cfg := ndi.DefaultReceiverConfig()
	cfg.Source = &src
	recv, err := lib.NewReceiver(cfg)
	require.NoError(t, err)

	fs, err := recv.NewFrameSync()
	require.NoError(t, err)
	_, err = recv.NewFrameSync()
	assert.ErrorIs(t, err, ndi.ErrCreateFailed, "one frame sync per receiver")

	video, err := fs.CaptureVideo(ndi.FrameFormatProgressive)
	require.NoError(t, err)
	assert.True(t, video.Empty())
	fs.FreeVideo(video)

	audio, err := fs.CaptureAudio(48000, 4, 1600)
	require.NoError(t, err)
	assert.Equal(t, 4, audio.Channels)
	assert.Equal(t, 1600, audio.Samples)
	fs.FreeAudio(audio)

	feed.Video(&ndi.VideoFrame{Width: 8, Height: 4, FourCC: ndi.FourCCUYVY, Stride: 16, Data: make([]byte, 64)})
	tone := ndi.NewAudioFrame(48000, 2, 800)
	for i := range tone.Data {
		tone.Data[i] = 0.25
	}
	feed.Audio(tone)

	depth, err := fs.AudioQueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 800, depth)

	// Video repeats until a newer frame arrives.
	for i := 0; i < 2; i++ {
		video, err = fs.CaptureVideo(ndi.FrameFormatProgressive)
		require.NoError(t, err)
		assert.Equal(t, 8, video.Width)
		assert.Equal(t, 4, video.Height)
	}
	fs.FreeVideo(video)

	// 800 queued samples are padded with silence up to 1600.
	audio, err = fs.CaptureAudio(48000, 4, 1600)
	require.NoError(t, err)
	require.Equal(t, 1600, audio.Samples)
	for ch := 0; ch < 4; ch++ {
		samples := audio.Channel(ch)
		assert.Equal(t, float32(0.25), samples[0])
		assert.Equal(t, float32(0.25), samples[799])
		assert.Zero(t, samples[800])
	}

	_, err = fs.CaptureAudio(-1, 2, 10)
	assert.ErrorIs(t, err, ndi.ErrInvalidFrame)

	// The frame sync closes before its receiver.
	require.NoError(t, recv.Close())
	assertReleased(t, net)
	_, err = fs.CaptureVideo(ndi.FrameFormatProgressive)
	assert.ErrorIs(t, err, ndi.ErrClosed)
}

func TestFrameSync_CloseKeepsReceiver(t *testing.T) {
	lib, net := openLoopback(t)
	recv, err := lib.NewReceiver(ndi.DefaultReceiverConfig())
	require.NoError(t, err)

	fs, err := recv.NewFrameSync()
	require.NoError(t, err)
	require.NoError(t, fs.Close())
	require.NoError(t, fs.Close())
	assert.Zero(t, net.Stats().Live(loopback.KindFrameSync))

	// A new frame sync can be attached once the old one is gone.
	fs, err = recv.NewFrameSync()
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	_, err = recv.Capture(context.Background(), time.Millisecond)
	require.NoError(t, err)
}

func TestSender(t *testing.T) {
	lib, net := openLoopback(t)
	ctx := context.Background()

	sender, err := lib.NewSender(ndi.SenderConfig{Name: "My Audio", ClockAudio: true})
	require.NoError(t, err)

	finder, err := lib.NewFinder(ndi.DefaultFinderConfig())
	require.NoError(t, err)
	sources, err := finder.Sources()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "LOOPBACK (My Audio)", sources[0].Name)

	cfg := ndi.DefaultReceiverConfig()
	cfg.Source = &sources[0]
	recv, err := lib.NewReceiver(cfg)
	require.NoError(t, err)

	conns, err := sender.Connections(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, conns)

	frame := ndi.NewAudioFrame(48000, 4, 1920)
	frame.Data[0] = 0.5
	require.NoError(t, sender.SendAudio(ctx, frame))
	assert.ErrorIs(t, sender.SendAudio(ctx, &ndi.AudioFrame{}), ndi.ErrInvalidFrame)
	assert.Equal(t, uint64(1), sender.FramesSent())

	// The frame may be reused once SendAudio returns.
	frame.Data[0] = 0
	got, err := recv.Capture(ctx, time.Second)
	require.NoError(t, err)
	audio, ok := got.(*ndi.AudioFrame)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, float32(0.5), audio.Data[0])
	assert.Equal(t, 4, audio.Channels)

	require.NoError(t, sender.Close())
	got, err = recv.Capture(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ndi.ConnectionLost{}, got)

	require.NoError(t, lib.Close())
	assertReleased(t, net)
}

// converterNet adds a runtime-style 16-bit converter to a loopback network.
type converterNet struct {
	*loopback.Network
	calls int
}

func (c *converterNet) Interleave16(dst *ndi.AudioFrameInterleaved16, src *ndi.AudioFrame, referenceLevel int) error {
	c.calls++
	dst.SampleRate, dst.Channels, dst.Samples = src.SampleRate, src.Channels, src.Samples
	dst.ReferenceLevel = referenceLevel
	for i := range dst.Data {
		dst.Data[i] = 7
	}
	return nil
}

func TestLibrary_Interleave16(t *testing.T) {
	src := ndi.NewAudioFrame(48000, 2, 4)
	src.Data[0] = 1

	t.Run("pure Go fallback", func(t *testing.T) {
		lib, _ := openLoopback(t)
		out, err := lib.Interleave16(nil, src, ndi.DefaultReceiveReferenceLevel)
		require.NoError(t, err)
		assert.Len(t, out.Data, 8)
		assert.Equal(t, int16(3277), out.Data[0])
	})

	t.Run("backend converter", func(t *testing.T) {
		conv := &converterNet{Network: loopback.New()}
		lib, err := ndi.Open(conv)
		require.NoError(t, err)
		defer lib.Close()

		out, err := lib.Interleave16(nil, src, 12)
		require.NoError(t, err)
		assert.Equal(t, 1, conv.calls)
		assert.Len(t, out.Data, 8)
		assert.Equal(t, int16(7), out.Data[7])
		assert.Equal(t, 12, out.ReferenceLevel)

		_, err = lib.Interleave16(out, &ndi.AudioFrame{}, 12)
		assert.ErrorIs(t, err, ndi.ErrInvalidFrame)
		assert.Equal(t, 1, conv.calls)
	})
}
