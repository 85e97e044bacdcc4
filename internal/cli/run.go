package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Satya110584/ndi"
	"github.com/Satya110584/ndi/loopback"
)

// BackendFactory opens the runtime backend a program runs on.
type BackendFactory func(ctx context.Context, v *viper.Viper) (ndi.Backend, error)

// DefaultBackend selects the backend from the "backend" key. The loopback
// backend comes with a demo source that runs until ctx is done.
func DefaultBackend(ctx context.Context, v *viper.Viper) (ndi.Backend, error) {
	switch name := v.GetString(KeyBackend); name {
	case BackendNative, "":
		return ndi.NewNativeBackend(v.GetString(KeyLibraryPath))
	case BackendLoopback:
		net := loopback.New()
		net.ClockAudio = true
		go loopback.RunDemo(ctx, net, "Demo")
		return net, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// OpenLibrary opens the backend and initializes the runtime on it.
func OpenLibrary(ctx context.Context, v *viper.Viper, factory BackendFactory) (*ndi.Library, error) {
	if factory == nil {
		factory = DefaultBackend
	}
	backend, err := factory(ctx, v)
	if err != nil {
		return nil, err
	}
	lib, err := ndi.Open(backend)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "OpenLibrary",
		"backend":  v.GetString(KeyBackend),
		"version":  lib.Version(),
	}).Info("NDI runtime ready")
	return lib, nil
}

// Stopped reports whether err only says that the run ended, by deadline
// or by interrupt.
func Stopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Execute runs cmd with a context cancelled by SIGINT or SIGTERM and maps
// the result to a process exit code.
func Execute(cmd *cobra.Command) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return ExecuteContext(ctx, cmd)
}

// ExecuteContext runs cmd with ctx. Errors are printed to the command's
// stderr as "Error: <msg>" and yield exit code 1.
func ExecuteContext(ctx context.Context, cmd *cobra.Command) int {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.ExecuteContext(ctx); err != nil && !Stopped(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

// PreRun loads the config file and sets up logging; programs use it as
// their PersistentPreRunE.
func PreRun(v *viper.Viper) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := LoadConfig(v); err != nil {
			return err
		}
		return SetupLogging(v, cmd)
	}
}
