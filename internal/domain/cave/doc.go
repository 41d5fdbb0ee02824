// Package cave contains the core domain types of the cheese cave device.
//
// It defines the three-state FanState machine, the Setpoint alert band and the
// State of the cave at a point in time. Environment is the single owned
// context object guarding State: every mutation from the simulator or from a
// remote command goes through Environment.Update and is therefore atomic.
package cave
