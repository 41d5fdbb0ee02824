package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/cave-device/internal/config"
	"github.com/oshokin/cave-device/internal/service/device"
	"github.com/oshokin/cave-device/internal/version"
)

var (
	// options collects flag values for the device run.
	options device.Options

	// rootCmd represents the base command for running the simulated cave.
	rootCmd = &cobra.Command{
		Use:   "cave-device",
		Short: "Run a simulated cheese cave device.",
		Long: `Simulates a cheese cave with a temperature and humidity fan.

Every interval the cave readings are advanced and a telemetry message with
alert properties is published: to an MQTT IoT hub when a connection string
or broker URL is configured, to the console otherwise.

The fan is controlled remotely with the SetFanState direct method, received
over MQTT and, when a command address is set, over gRPC (see cave-commander).
A failed fan cannot be switched on or off again.

The DEVICE_CONNECTION_STRING and CAVE_INTERVAL environment variables override
the configuration file; flags override both.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return device.Run(ctx, &options)
		},
	}

	// overwrite lets init-config replace an existing file.
	overwrite bool

	// initConfigCmd writes the reference cave settings.
	initConfigCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Write a settings file with the reference cave defaults.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.WriteDefault(options.ConfigPath, overwrite)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "settings written to %s\n", path)

			return err
		},
	}
)

// Execute runs the cave-device CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+", optional)")

	flags := rootCmd.Flags()

	flags.StringVarP(&options.CommandAddress, "listen", "l", "", "gRPC direct method listen address, e.g. :50051")
	flags.StringVarP(&options.BrokerURL, "broker", "b", "", "MQTT broker URL, e.g. mqtt://localhost:1883")
	flags.StringVarP(&options.StateFile, "state-file", "s", "", "path to persist the cave state across restarts")
	flags.StringVar(&options.LogLevel, "log-level", "", "minimum log level (debug, info, warn, error)")
	flags.DurationVarP(&options.Interval, "interval", "i", 0, "telemetry interval, e.g. 5s")
	flags.Uint64Var(&options.Seed, "seed", 0, "simulation seed, 0 picks a random one")

	initConfigCmd.Flags().BoolVarP(&overwrite, "force", "f", false, "overwrite an existing settings file")

	rootCmd.AddCommand(initConfigCmd)
}
