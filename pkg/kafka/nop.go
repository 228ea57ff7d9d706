package kafka

import "context"

// NopPublisher discards every event. It stands in for a Producer when the
// bus is disabled.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, string, *Event) error { return nil }
