// Package dubbing implements the pipeline stages that turn an uploaded video
// into a dubbed one: audio extraction, transcription, translation, speech
// synthesis, caption alignment, and the final remux.
package dubbing
