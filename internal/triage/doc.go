// Package triage is the business boundary for the alert triage and
// lifecycle engine. It defines the Service (ingest, dedup, staff actions,
// queries), the Classifier (severity policy), the Deduper (merge policy),
// the Store interface (persistence with per-alert serialized mutation and an
// atomic audit trail), the escalation Scheduler, and the domain models.
package triage
