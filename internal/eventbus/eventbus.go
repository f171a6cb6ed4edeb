// Package eventbus defines the EventBus collaborator and ships two
// implementations: an in-memory bus for tests and
// single-process deployments, and a Kafka-backed sink grounded in
// collab-service/backend/internal/collab/kafka.go +
// kafka_dispatcher.go for multi-process fan-out.
package eventbus

import (
	"context"

	"collabcore/internal/model"
)

// EventBus is the narrow interface the engine and session fabric see:
// a place to hand off domain events. The core never reads from it —
// any reaction to an event happens in a separate collaborator that
// subscribes, which is why Publish has no return value the core would
// need to act on; a bus that can't keep up logs and drops rather than
// propagate backpressure into the editor's serialized loop.
type EventBus interface {
	Publish(ctx context.Context, evt model.Event)
}

// Subscriber is implemented by buses that support local fan-out (the
// in-memory bus). Kafka-backed buses don't: a deployment wanting to
// react to events consumes the Kafka topic out-of-process instead.
type Subscriber interface {
	Subscribe(handler func(model.Event)) (unsubscribe func())
}
