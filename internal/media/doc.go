// Package media shells out to ffmpeg and ffprobe for audio extraction,
// remuxing, and caption muxing.
package media
