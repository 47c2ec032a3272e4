// Package notifications sends job lifecycle alerts through ntfy when a topic
// is configured.
package notifications
