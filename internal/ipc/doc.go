// Package ipc exposes daemon control to the CLI over JSON-RPC on a Unix
// domain socket.
package ipc
