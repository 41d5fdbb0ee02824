package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/cave-device/internal/api/grpc/device"
	"github.com/oshokin/cave-device/internal/config"
	"github.com/oshokin/cave-device/internal/domain/cave"
	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/notifier"
	repository "github.com/oshokin/cave-device/internal/repository/state"
	"github.com/oshokin/cave-device/internal/service/command"
	"github.com/oshokin/cave-device/internal/service/simulator"
	"github.com/oshokin/cave-device/internal/service/telemetry"
	"github.com/oshokin/cave-device/internal/transport"
	"github.com/oshokin/cave-device/internal/transport/console"
	"github.com/oshokin/cave-device/internal/transport/mqtt"
)

// Options controls the cave-device process. Non-zero fields override the
// configuration file.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// CommandAddress overrides the gRPC direct method listen address.
	CommandAddress string
	// BrokerURL overrides the MQTT broker URL.
	BrokerURL string
	// StateFile overrides the snapshot file path.
	StateFile string
	// LogLevel overrides the minimum log level.
	LogLevel string
	// Interval overrides the telemetry period.
	Interval time.Duration
	// Seed overrides the simulation seed.
	Seed uint64
}

// errInvalidLogLevel is returned for unknown log level names.
var errInvalidLogLevel = errors.New("invalid log level")

// Run starts the simulated device and blocks until ctx is cancelled or a
// transport fails. Every interval the cave is ticked and then published.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "cave-device")

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		level, ok := logger.ParseLogLevel(cfg.LogLevel)
		if !ok {
			return fmt.Errorf("%w: %q", errInvalidLogLevel, cfg.LogLevel)
		}

		logger.SetLevel(level)
	}

	ctx = logger.WithKV(ctx, "device_id", cfg.DeviceID)

	registry := transport.NewRegistry()

	var (
		out   transport.Publisher = console.NewPublisher()
		start []func(context.Context) error
	)

	broker, hasBroker, err := cfg.Broker()
	if err != nil {
		return fmt.Errorf("resolve broker: %w", err)
	}

	if hasBroker {
		hub, err := mqtt.New(mqtt.Options{
			BrokerURL: broker.URL,
			DeviceID:  broker.DeviceID,
			Username:  broker.Username,
			Password:  broker.Password,
			Timeout:   cfg.Timeout,
		}, registry)
		if err != nil {
			return fmt.Errorf("create mqtt transport: %w", err)
		}

		out = hub
		start = append(start, hub.Run)
	} else {
		logger.Info(ctx, "No broker configured, telemetry goes to the console")
	}

	d := newDevice(cfg, out)
	command.NewHandler(d.env).Register(registry)

	if err := d.restore(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	if cfg.CommandAddress != "" {
		lc := net.ListenConfig{}

		lis, err := lc.Listen(ctx, "tcp", cfg.CommandAddress)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.CommandAddress, err)
		}

		start = append(start, func(ctx context.Context) error {
			return serveGRPC(ctx, lis, registry)
		})
	}

	logger.InfoKV(ctx, "Cave device started",
		"interval", cfg.Interval,
		"methods", registry.Methods(),
		"ambient_temperature", cfg.Environment.AmbientTemperature,
		"ambient_humidity", cfg.Environment.AmbientHumidity,
	)

	g, gctx := errgroup.WithContext(ctx)

	for _, fn := range start {
		g.Go(func() error {
			return fn(gctx)
		})
	}

	g.Go(func() error {
		runLoop(gctx, d.interval, func(ctx context.Context) {
			d.step(ctx)
			d.persist(ctx)
		})

		return nil
	})

	err = g.Wait()

	d.persist(context.WithoutCancel(ctx))
	logger.Info(ctx, "Cave device stopped")

	return err
}

// loadConfig reads the settings file and applies the option overrides.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.CommandAddress != "" {
		cfg.CommandAddress = opts.CommandAddress
	}

	if opts.BrokerURL != "" {
		cfg.BrokerURL = opts.BrokerURL
	}

	if opts.StateFile != "" {
		cfg.StateFile = opts.StateFile
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	if opts.Interval > 0 {
		cfg.Interval = opts.Interval
	}

	if opts.Seed != 0 {
		cfg.Seed = opts.Seed
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return cfg, nil
}

// newDevice builds the cave, its simulator and its publisher from cfg.
func newDevice(cfg *config.Config, out transport.Publisher) *device {
	env := cave.NewEnvironment(
		cfg.Environment.AmbientTemperature,
		cfg.Environment.AmbientHumidity,
		cfg.Environment.Temperature,
		cfg.Environment.Humidity,
	)

	var remote notifier.Notifier
	if cfg.NtfyURL != "" {
		remote = notifier.NewNtfy(cfg.NtfyURL)
	}

	sim := simulator.New(
		simulator.WithSeed(cfg.Seed),
		simulator.WithFailureProbability(*cfg.FailureProbability),
		simulator.WithNotifier(alertNotifier(remote, cfg.Timeout)),
	)

	d := &device{
		env:       env,
		sim:       sim,
		publisher: telemetry.NewPublisher(out, cfg.SensorID),
		interval:  cfg.Interval,
	}

	if cfg.StateFile != "" {
		d.repo = repository.NewFileRepository(cfg.StateFile)
	}

	return d
}

// alertNotifier logs fan failure alerts on the loop goroutine and hands
// them to remote, if any, in the background so a slow endpoint never
// delays telemetry.
func alertNotifier(remote notifier.Notifier, timeout time.Duration) notifier.Notifier {
	if remote == nil {
		return notifier.Log{}
	}

	return notifier.Multi{
		notifier.Log{},
		notifier.NewAsync(remote, timeout),
	}
}

// serveGRPC serves the direct method endpoint on lis until ctx is cancelled.
func serveGRPC(ctx context.Context, lis net.Listener, dispatcher api.Dispatcher) error {
	grpcServer := grpc.NewServer()
	api.Register(grpcServer, api.NewServer(dispatcher))

	logger.InfoKV(ctx, "Direct method endpoint listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}
