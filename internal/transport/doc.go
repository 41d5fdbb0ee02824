// Package transport defines the messaging primitives the device depends on:
// fire-and-forget telemetry publishing and direct methods that must be
// answered with a status code and a message.
//
// Concrete transports (MQTT, gRPC, console) live in sub-packages and in
// internal/api. The Registry routes inbound direct methods to the handlers
// registered by name, independently of the transport that received them.
package transport
