// Package main hosts the trashcan CLI entrypoint and command graph.
//
// `trashcan put` streams paths to the daemon's loopback trash port. The
// remaining commands manage the daemon process and query it through the
// control API: start, stop, status, sweep, and history. The hidden `daemon`
// command is what `start` launches in the background.
package main
