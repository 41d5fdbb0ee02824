// Package device implements the gRPC direct method endpoint of the device.
//
// The service is described by hand with protobuf well-known types, so no
// generated code is needed: requests and responses are google.protobuf.Struct
// values carrying {methodName, payload, requestId} and {status, payload}.
// Every call is routed through the same dispatcher the MQTT transport uses.
package device
