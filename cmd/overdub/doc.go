// Command overdub is the CLI and daemon entry point for the dubbing
// pipeline: overdub serve runs the daemon, the remaining commands talk to it
// over the IPC socket.
package main
