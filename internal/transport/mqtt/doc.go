// Package mqtt is an IoT hub style MQTT v5 transport built on paho's
// autopaho connection manager.
//
// Telemetry goes to devices/{deviceId}/messages/events/ with the
// application properties carried as MQTT v5 user properties. Direct
// methods arrive on $iothub/methods/POST/{method}/?$rid={rid} and are
// answered on $iothub/methods/res/{status}/?$rid={rid}. Reconnection is
// owned by autopaho; this package never retries a publish.
package mqtt
