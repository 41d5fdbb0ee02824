// Package commander is the operator side of the device command endpoint.
//
// It dials the gRPC direct method service of a running device, invokes a
// method such as SetFanState and prints the status and message the device
// answered with.
package commander
