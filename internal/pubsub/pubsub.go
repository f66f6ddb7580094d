package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Topics
const (
	TopicAudit = "billing.audit"
)

// Publisher defines the interface for publishing billing events
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Close() error
}

// Subscriber defines the interface for consuming billing events
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// PubSub combines both Publisher and Subscriber interfaces
type PubSub interface {
	Publisher
	Subscriber
}
