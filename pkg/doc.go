// Package pkg holds the building blocks of commkit.
//
// Most programs start with pkg/command, bind a command to a channel from
// pkg/channel and load settings with pkg/config. pkg/observability plugs
// into commands through command.WithRecorder and command.WithTracer and
// into channels as middleware.
package pkg
