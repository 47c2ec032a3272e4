// Package artifacts stores stage outputs under content-addressed keys, on
// local disk or in an S3-compatible bucket. Keys are derived from the stage
// name, its input refs, and the job configuration, so two jobs with identical
// inputs share the same stored bytes.
package artifacts
