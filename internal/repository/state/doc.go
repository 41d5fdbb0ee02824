// Package state persists the last snapshot of the cave.
//
// The FileRepository stores and loads the readings and the fan state as
// protobuf JSON on disk so a restarted device resumes where it stopped,
// including a failed fan.
package state
