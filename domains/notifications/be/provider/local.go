package provider

import (
	"context"
	"maps"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
)

// ConsumerFunc receives one queued message.
type ConsumerFunc func(ctx context.Context, msg service.Message)

// LocalQueue delivers published messages in-process, synchronously, to a
// consumer. It stands in for Pub/Sub in local runs and tests.
type LocalQueue struct {
	consume ConsumerFunc
}

// NewLocalQueue constructs a LocalQueue.
func NewLocalQueue(consume ConsumerFunc) *LocalQueue {
	if consume == nil {
		panic("consumer is required")
	}
	return &LocalQueue{consume: consume}
}

func (q *LocalQueue) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	msg := service.Message{
		ID:         uuid.NewString(),
		Data:       append([]byte(nil), data...),
		Attributes: maps.Clone(attributes),
	}
	q.consume(ctx, msg)
	return msg.ID, nil
}

var _ service.Publisher = (*LocalQueue)(nil)
