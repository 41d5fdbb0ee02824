package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/oshokin/cave-device/internal/domain/cave"
	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/notifier"
)

const (
	// DefaultFailureProbability is the per-tick chance a running fan fails.
	DefaultFailureProbability = 0.01

	// creepDivisor scales the upward creep toward ambient: U(0, 1/creepDivisor).
	creepDivisor = 10
	// humidityAmbientMargin keeps humidity creeping until ambient minus this margin.
	humidityAmbientMargin = 1
)

// Random is the randomness source. *rand.Rand satisfies it.
type Random interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
}

// Simulator advances a cave.Environment.
type Simulator struct {
	// rng drives every stochastic decision.
	rng Random
	// notifier receives the fan failure alert.
	notifier notifier.Notifier
	// failureProbability is the per-tick chance of On -> Failed.
	failureProbability float64
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRandom sets the randomness source.
func WithRandom(rng Random) Option {
	return func(s *Simulator) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithSeed seeds a PCG source. Zero keeps the entropy-seeded default.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		if seed != 0 {
			s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // Simulation, not crypto.
		}
	}
}

// WithNotifier sets the alerting collaborator for fan failures.
func WithNotifier(n notifier.Notifier) Option {
	return func(s *Simulator) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithFailureProbability overrides the per-tick fan failure chance.
// Values outside [0, 1] are ignored.
func WithFailureProbability(p float64) Option {
	return func(s *Simulator) {
		if p >= 0 && p <= 1 {
			s.failureProbability = p
		}
	}
}

// New creates a Simulator. Without options it uses an entropy-seeded
// source, the log notifier and DefaultFailureProbability.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		rng:                rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // Simulation, not crypto.
		notifier:           notifier.Log{},
		failureProbability: DefaultFailureProbability,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Tick advances env by one step. It cannot fail; a failing notifier is logged.
func (s *Simulator) Tick(ctx context.Context, env *cave.Environment) {
	var (
		failed bool
		after  cave.State
	)

	env.Update(func(st *cave.State) {
		switch st.Fan {
		case cave.FanOn:
			failed = s.actuate(st)
		case cave.FanOff, cave.FanFailed:
			s.drift(st)
		}

		st.ClampHumidity()
		after = *st
	})

	if !failed {
		return
	}

	if err := s.notifier.Notify(ctx, "Fan has failed", fmt.Sprintf(
		"fan failed at temperature %.2f and humidity %.2f; it can no longer be controlled",
		after.CurrentTemperature, after.CurrentHumidity,
	)); err != nil {
		logger.ErrorKV(ctx, "Failed to deliver fan failure alert", "error", err)
	}
}

// actuate nudges both readings toward their setpoints and rolls for a fan
// failure. It reports whether the fan failed on this step.
func (s *Simulator) actuate(st *cave.State) bool {
	st.CurrentTemperature += s.nudge(st.Temperature.Desired - st.CurrentTemperature)
	st.CurrentHumidity += s.nudge(st.Humidity.Desired - st.CurrentHumidity)

	if s.rng.Float64() >= s.failureProbability {
		return false
	}

	if err := st.Fan.CanTransition(cave.FanFailed); err != nil {
		return false
	}

	st.Fan = cave.FanFailed

	return true
}

// nudge is a random walk step biased toward the sign of delta.
func (s *Simulator) nudge(delta float64) float64 {
	return sign(delta)*s.rng.Float64() + s.rng.Float64() - 0.5
}

// drift moves readings toward ambient with the fan idle.
func (s *Simulator) drift(st *cave.State) {
	st.CurrentTemperature += s.creep(st.CurrentTemperature, st.AmbientTemperature)
	st.CurrentHumidity += s.creep(st.CurrentHumidity, st.AmbientHumidity-humidityAmbientMargin)
}

// creep returns a small upward step below the boundary, otherwise a
// symmetric fluctuation.
func (s *Simulator) creep(current, boundary float64) float64 {
	if current < boundary {
		return s.rng.Float64() / creepDivisor
	}

	return s.rng.Float64() - 0.5
}

// sign returns -1, 0 or 1.
func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
