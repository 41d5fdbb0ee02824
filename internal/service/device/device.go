package device

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/cave-device/internal/domain/cave"
	"github.com/oshokin/cave-device/internal/logger"
	repository "github.com/oshokin/cave-device/internal/repository/state"
	"github.com/oshokin/cave-device/internal/service/simulator"
	"github.com/oshokin/cave-device/internal/service/telemetry"
)

// device is one simulated cave: its state, the simulator advancing it and
// the publisher reporting it.
type device struct {
	// env is the shared mutable state.
	env *cave.Environment
	// sim advances env every interval.
	sim *simulator.Simulator
	// publisher reports env after every tick.
	publisher *telemetry.Publisher
	// interval is the telemetry period.
	interval time.Duration
	// repo persists the last snapshot, nil when disabled.
	repo repository.Repository
}

// step runs one interval: tick, then publish the advanced state.
func (d *device) step(ctx context.Context) {
	d.sim.Tick(ctx, d.env)
	d.publisher.Publish(ctx, d.env)
}

// runLoop calls step once per interval until ctx is cancelled. The first
// step happens one full interval after start.
func runLoop(ctx context.Context, interval time.Duration, step func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step(ctx)
		}
	}
}

// restore loads the last snapshot into env. A missing file keeps the
// configured starting state.
func (d *device) restore(ctx context.Context) error {
	if d.repo == nil {
		return nil
	}

	snapshot, err := d.repo.Load(ctx)
	switch {
	case err == nil:
		d.env.Update(snapshot.Apply)
		logger.InfoKV(ctx, "Cave state restored",
			"saved_at", snapshot.SavedAt,
			"temperature", snapshot.CurrentTemperature,
			"humidity", snapshot.CurrentHumidity,
			"fan", snapshot.Fan.String(),
		)
	case errors.Is(err, repository.ErrNotFound):
		// Keep the configured state.
	default:
		return err
	}

	return nil
}

// persist saves the current snapshot. Failures are logged.
func (d *device) persist(ctx context.Context) {
	if d.repo == nil {
		return
	}

	if err := d.repo.Save(ctx, repository.FromState(d.env.Snapshot(), time.Now())); err != nil {
		logger.ErrorKV(ctx, "Failed to persist cave state", "error", err)

		return
	}

	logger.Debug(ctx, "Cave state persisted")
}
