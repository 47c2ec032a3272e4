// Package language defines the fixed set of dubbing languages and voice
// styles the pipeline accepts, with normalization for code variants.
package language
