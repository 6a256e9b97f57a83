// Package triage turns a photo of an animal into a veterinary urgency verdict.
// It defines the Engine (phased question answering over the model gateway),
// Synthesize (the assessment table), the Service (worker pool, run log,
// notifications), the Store interface and the domain models.
package triage
