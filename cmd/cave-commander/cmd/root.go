package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/cave-device/internal/config"
	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/service/command"
	"github.com/oshokin/cave-device/internal/service/commander"
	"github.com/oshokin/cave-device/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// address overrides the device command address.
	address string
	// wait keeps retrying while the device is unreachable.
	wait bool
	// verbose enables debug logging.
	verbose bool

	// rootCmd represents the base command for controlling a device.
	rootCmd = &cobra.Command{
		Use:   "cave-commander",
		Short: "Invoke direct methods on a running cave device.",
		Long: `Sends direct methods to the gRPC command endpoint of a cave device and
prints the status and message it answers with.

The device address is taken from --address or from command_addr in the
configuration file. The command exits non-zero when the device answers
with a non-2xx status.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := zapcore.WarnLevel
			if verbose {
				level = zapcore.DebugLevel
			}

			logger.SetLogger(logger.Logger().WithOptions(logger.WithLevel(level)))
		},
	}

	// onCmd switches the fan on.
	onCmd = &cobra.Command{
		Use:   "on",
		Short: "Switch the cave fan on.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return invoke(command.SetFanStateMethod, "on")
		},
	}

	// offCmd switches the fan off.
	offCmd = &cobra.Command{
		Use:   "off",
		Short: "Switch the cave fan off.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return invoke(command.SetFanStateMethod, "off")
		},
	}

	// invokeCmd calls an arbitrary direct method.
	invokeCmd = &cobra.Command{
		Use:   "invoke <method> [payload]",
		Short: "Invoke any direct method with an optional payload.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			var payload string
			if len(args) > 1 {
				payload = args[1]
			}

			return invoke(args[0], payload)
		},
	}
)

// invoke runs one method call with signal handling.
func invoke(method, payload string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return commander.Run(ctx, &commander.Options{
		ConfigPath: cfgPath,
		Address:    address,
		Method:     method,
		Payload:    payload,
		Wait:       wait,
		Out:        rootCmd.OutOrStdout(),
	})
}

// Execute runs the cave-commander CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&cfgPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+", optional)")
	flags.StringVarP(&address, "address", "a", "", "device command address, e.g. 127.0.0.1:50051")
	flags.BoolVarP(&wait, "wait", "w", false, "retry until the device is reachable")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(onCmd, offCmd, invokeCmd)
}
