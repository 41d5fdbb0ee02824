// Package config defines the device settings and provides helpers to load,
// validate and save them in YAML format.
//
// Environment variables override the file: DEVICE_CONNECTION_STRING carries
// the hub credential and CAVE_INTERVAL the telemetry period.
package config
