// Package telemetry turns a cave snapshot into a telemetry message and
// hands it to the transport.
//
// Alerts travel as application properties and are encoded by presence:
// a property is attached with the value "true" only when its condition
// holds. Publishing is fire-and-forget; a lost message is superseded by
// the next interval's one.
package telemetry
