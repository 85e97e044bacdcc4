// Package cli holds the configuration, logging and process plumbing the
// example programs share.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config keys shared by every program.
const (
	KeyBackend     = "backend"
	KeyLibraryPath = "library_path"
	KeyLogLevel    = "log_level"
	KeyRunFor      = "run_for"
	KeyConfigFile  = "config"
)

// Backend names accepted by --backend.
const (
	BackendNative   = "native"
	BackendLoopback = "loopback"
)

// NewViper returns a viper instance with the shared defaults, NDI_*
// environment binding and the optional ndi-examples.yaml config file.
// defaults holds program specific keys.
func NewViper(defaults map[string]any) *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyBackend, BackendNative)
	v.SetDefault(KeyLibraryPath, "")
	v.SetDefault(KeyLogLevel, "warn")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	// NDI_RECV_CAPTURE_TIMEOUT overrides recv.capture_timeout, and so on.
	v.SetEnvPrefix("NDI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("ndi-examples")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(os.ExpandEnv("$HOME/.config/ndi"))
	return v
}

// AddCommonFlags registers the flags every program takes and binds them
// into v.
func AddCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("backend", v.GetString(KeyBackend), "runtime backend (native or loopback)")
	flags.String("library-path", v.GetString(KeyLibraryPath), "path to the NDI runtime library")
	flags.String("log-level", v.GetString(KeyLogLevel), "diagnostic log level (trace, debug, info, warn, error)")
	flags.Duration("run-for", v.GetDuration(KeyRunFor), "how long to run")
	flags.String("config", "", "config file (default ./ndi-examples.yaml)")

	v.BindPFlag(KeyBackend, flags.Lookup("backend"))
	v.BindPFlag(KeyLibraryPath, flags.Lookup("library-path"))
	v.BindPFlag(KeyLogLevel, flags.Lookup("log-level"))
	v.BindPFlag(KeyRunFor, flags.Lookup("run-for"))
	v.BindPFlag(KeyConfigFile, flags.Lookup("config"))
}

// LoadConfig reads the config file if one exists. A missing default file
// is not an error; a missing explicit file is.
func LoadConfig(v *viper.Viper) error {
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "LoadConfig",
		"file":     v.ConfigFileUsed(),
	}).Debug("config loaded")
	return nil
}

// SetupLogging points logrus at stderr with the configured level.
func SetupLogging(v *viper.Viper, cmd *cobra.Command) error {
	level, err := logrus.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return nil
}
