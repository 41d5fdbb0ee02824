package cave

import (
	"math"
	"sync"
)

// MaxHumidity is the hard upper bound for relative humidity, in percent.
const MaxHumidity = 100.0

// Setpoint is a desired value with an acceptable band around it.
type Setpoint struct {
	// Desired is the target reading.
	Desired float64 `yaml:"desired"`
	// Limit is the acceptable distance from Desired in either direction.
	Limit float64 `yaml:"limit"`
}

// Breached reports whether value lies strictly outside Desired±Limit.
func (p Setpoint) Breached(value float64) bool {
	return math.Abs(value-p.Desired) > p.Limit
}

// State is the cave at a point in time.
type State struct {
	// CurrentTemperature is the current temperature reading, in °F.
	CurrentTemperature float64
	// CurrentHumidity is the current relative humidity reading, in percent.
	CurrentHumidity float64
	// AmbientTemperature is the temperature the cave drifts to with the fan idle.
	AmbientTemperature float64
	// AmbientHumidity is the humidity the cave drifts to with the fan idle.
	AmbientHumidity float64
	// Temperature is the temperature setpoint.
	Temperature Setpoint
	// Humidity is the humidity setpoint.
	Humidity Setpoint
	// Fan is the current actuator state.
	Fan FanState
}

// ClampHumidity enforces the MaxHumidity bound.
func (s *State) ClampHumidity() {
	s.CurrentHumidity = math.Min(MaxHumidity, s.CurrentHumidity)
}

// TemperatureAlert reports whether the temperature is outside its band.
func (s *State) TemperatureAlert() bool {
	return s.Temperature.Breached(s.CurrentTemperature)
}

// HumidityAlert reports whether the humidity is outside its band.
func (s *State) HumidityAlert() bool {
	return s.Humidity.Breached(s.CurrentHumidity)
}

// FanAlert reports whether the fan has failed.
func (s *State) FanAlert() bool {
	return s.Fan == FanFailed
}

// Environment owns the cave State for the lifetime of the process.
// It is safe for concurrent use.
type Environment struct {
	// mu serializes the simulator tick and remote commands.
	mu sync.Mutex
	// state is the live cave state.
	state State
}

// NewEnvironment creates an Environment starting at the ambient readings
// with the fan off. The humidity bound is applied to the initial state too.
func NewEnvironment(ambientTemperature, ambientHumidity float64, temperature, humidity Setpoint) *Environment {
	env := &Environment{
		state: State{
			CurrentTemperature: ambientTemperature,
			CurrentHumidity:    ambientHumidity,
			AmbientTemperature: ambientTemperature,
			AmbientHumidity:    ambientHumidity,
			Temperature:        temperature,
			Humidity:           humidity,
			Fan:                FanOff,
		},
	}

	env.state.ClampHumidity()

	return env
}

// Update runs fn with exclusive access to the state.
// fn must not retain the pointer after it returns.
func (e *Environment) Update(fn func(s *State)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(&e.state)
}

// Snapshot returns a copy of the current state.
func (e *Environment) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Fan returns the current fan state.
func (e *Environment) Fan() FanState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.Fan
}

// SetFan applies a fan transition atomically, rejecting anything
// CanTransition forbids. It returns the resulting state.
func (e *Environment) SetFan(to FanState) (FanState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.state.Fan.CanTransition(to); err != nil {
		return e.state.Fan, err
	}

	e.state.Fan = to

	return e.state.Fan, nil
}
