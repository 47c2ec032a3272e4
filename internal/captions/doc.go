// Package captions models timed caption tracks and converts them to and from
// SubRip text for muxing into the dubbed output.
package captions
