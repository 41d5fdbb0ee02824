// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a colored console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Info, ErrorKV, etc.).
//
// The device runner, the transports and the command handler all take a
// context and log through the logger stored in it.
package logger
