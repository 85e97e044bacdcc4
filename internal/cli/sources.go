package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Satya110584/ndi"
)

// Receive-side keys shared by the receiving programs.
const (
	KeyPollInterval   = "recv.poll_interval"
	KeyCaptureTimeout = "recv.capture_timeout"
	KeyRecvName       = "recv.name"
	KeyBandwidth      = "recv.bandwidth"
	KeyColorFormat    = "recv.color_format"
)

// ReceiveDefaults returns the defaults of the receive keys.
func ReceiveDefaults(captureTimeout time.Duration, name string) map[string]any {
	return map[string]any{
		KeyPollInterval:   time.Second,
		KeyCaptureTimeout: captureTimeout,
		KeyRecvName:       name,
		KeyBandwidth:      ndi.BandwidthHighest.String(),
		KeyColorFormat:    ndi.ColorFormatUYVYBGRA.String(),
	}
}

// AddReceiveFlags registers and binds the receive flags.
func AddReceiveFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.Duration("poll-interval", v.GetDuration(KeyPollInterval), "source discovery poll interval")
	flags.Duration("capture-timeout", v.GetDuration(KeyCaptureTimeout), "how long a capture waits for a frame")
	flags.String("recv-name", v.GetString(KeyRecvName), "receiver name shown to the sender")
	flags.String("bandwidth", v.GetString(KeyBandwidth), "metadata_only, audio_only, lowest or highest")
	flags.String("color-format", v.GetString(KeyColorFormat), "bgrx_bgra, uyvy_bgra, rgbx_rgba, uyvy_rgba, fastest or best")
	v.BindPFlag(KeyPollInterval, flags.Lookup("poll-interval"))
	v.BindPFlag(KeyCaptureTimeout, flags.Lookup("capture-timeout"))
	v.BindPFlag(KeyRecvName, flags.Lookup("recv-name"))
	v.BindPFlag(KeyBandwidth, flags.Lookup("bandwidth"))
	v.BindPFlag(KeyColorFormat, flags.Lookup("color-format"))
}

// ReceiverConfig builds a receiver config from the receive keys.
func ReceiverConfig(v *viper.Viper) (ndi.ReceiverConfig, error) {
	cfg := ndi.DefaultReceiverConfig()
	cfg.Name = v.GetString(KeyRecvName)

	bw, ok := ndi.ParseBandwidth(v.GetString(KeyBandwidth))
	if !ok {
		return cfg, fmt.Errorf("unknown bandwidth %q", v.GetString(KeyBandwidth))
	}
	cf, ok := ndi.ParseColorFormat(v.GetString(KeyColorFormat))
	if !ok {
		return cfg, fmt.Errorf("unknown color format %q", v.GetString(KeyColorFormat))
	}
	cfg.Bandwidth = bw
	cfg.ColorFormat = cf
	return cfg, nil
}

// FirstSource runs a finder until at least one source shows up, printing
// prompt before every poll, and returns the first one. The finder is
// closed before returning.
func FirstSource(ctx context.Context, lib *ndi.Library, v *viper.Viper, out io.Writer, prompt string) (ndi.Source, error) {
	finder, err := lib.NewFinder(ndi.DefaultFinderConfig())
	if err != nil {
		return ndi.Source{}, err
	}
	defer finder.Close()

	sources, err := ndi.WaitForAnySource(ctx, finder, v.GetDuration(KeyPollInterval), func() {
		fmt.Fprintln(out, prompt)
	})
	if err != nil {
		return ndi.Source{}, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "FirstSource",
		"source":   sources[0].Name,
		"found":    len(sources),
	}).Info("source selected")
	return sources[0], nil
}
