// Package events provides a sequenced in-memory bus for job progress
// notifications, with a bounded replay buffer for polling clients and
// non-blocking fanout for websocket subscribers.
package events
