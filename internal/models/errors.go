package models

import "fmt"

// Error taxonomy. None of these may crash the pipeline: the system is
// fail-open on internal error and fail-closed on destructive directives.

// InvalidEventError marks a malformed event. The event is dropped and
// logged; processing continues.
type InvalidEventError struct {
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

// ConfigError marks malformed or missing threshold configuration. Recovered
// locally by falling back to defaults, surfaced as a warning log.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// StorageError marks a durable read/write failure after retries were
// exhausted. The triggering operation fails and in-memory state rolls back
// to the last known-durable value.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DirectiveDeliveryError marks an executor failure applying a punishment.
// Logged, never retried here; the decision itself stands.
type DirectiveDeliveryError struct {
	Directive Directive
	Err       error
}

func (e *DirectiveDeliveryError) Error() string {
	return fmt.Sprintf("directive %s for user %d in guild %d failed: %v",
		e.Directive.Kind, e.Directive.UserID, e.Directive.GuildID, e.Err)
}

func (e *DirectiveDeliveryError) Unwrap() error {
	return e.Err
}
