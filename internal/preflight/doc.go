// Package preflight verifies the environment before the daemon starts:
// directory access, required binaries, free disk space, and service
// configuration.
package preflight
