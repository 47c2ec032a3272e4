// Package services defines the shared error taxonomy for external
// collaborators and hosts the HTTP clients for the speech, translation, and
// voice synthesis backends in its subpackages.
package services
