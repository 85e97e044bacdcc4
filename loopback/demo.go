package loopback

import (
	"context"
	"time"

	"github.com/Satya110584/ndi"
)

// Demo source geometry.
const (
	demoWidth      = 320
	demoHeight     = 180
	demoSampleRate = 48000
	demoChannels   = 2
	demoSamples    = 960 // 20ms
)

// RunDemo publishes a source called name that produces a moving-bar UYVY
// picture at 30 fps and a 440 Hz tone until ctx is done.
func RunDemo(ctx context.Context, n *Network, name string) {
	feed := n.AddSource(name)
	defer feed.Remove()

	feed.Metadata(`<ndi_product long_name="loopback demo" short_name="demo"/>`)

	video := &ndi.VideoFrame{
		Width:      demoWidth,
		Height:     demoHeight,
		FourCC:     ndi.FourCCUYVY,
		FrameRateN: 30000,
		FrameRateD: 1000,
		Format:     ndi.FrameFormatProgressive,
		Stride:     demoWidth * 2,
		Data:       make([]byte, demoWidth*2*demoHeight),
	}
	audio := ndi.NewAudioFrame(demoSampleRate, demoChannels, demoSamples)
	tone := ndi.NewToneGenerator(440, 0.25)

	videoTick := time.NewTicker(time.Second / 30)
	defer videoTick.Stop()
	audioTick := time.NewTicker(audio.Duration())
	defer audioTick.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-videoTick.C:
			drawBar(video, frame)
			feed.Video(video)
			frame++
		case <-audioTick.C:
			tone.Fill(audio)
			feed.Audio(audio)
		}
	}
}

// drawBar paints a grey UYVY picture with a white vertical bar whose
// position follows the frame number.
func drawBar(f *ndi.VideoFrame, frame int) {
	bar := (frame * 4) % f.Width
	for y := 0; y < f.Height; y++ {
		row := f.Data[y*f.Stride : y*f.Stride+f.Width*2]
		for x := 0; x < f.Width; x += 2 {
			luma := byte(0x80)
			if x/8 == bar/8 {
				luma = 0xeb
			}
			row[x*2+0] = 0x80 // U
			row[x*2+1] = luma // Y0
			row[x*2+2] = 0x80 // V
			row[x*2+3] = luma // Y1
		}
	}
}
