// Package device runs a simulated cheese cave.
//
// Run wires configuration, the simulator, the telemetry publisher and the
// direct method transports together. A ticker drives tick-then-publish on
// one goroutine while the MQTT hub and the gRPC endpoint serve SetFanState
// concurrently against the same environment.
package device
