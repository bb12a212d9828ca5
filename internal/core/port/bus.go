package port

import "github.com/berfenger/zeroexport2mqtt/internal/core/domain"

type Subscriber interface {
	Subscribe(topic string, handler domain.MessageHandler) error
}

// Publisher sends a message and reports whether the bus accepted it.
type Publisher interface {
	Publish(topic string, payload string) error
}

type Bus interface {
	Subscriber
	Publisher
}

type LimiterObserver interface {
	FeedUpdated(watts float64)
	BurnUpdated(watts float64)
	LimitSet(watts int)
	LimitFailed(watts int)
}

type DropObserver interface {
	MessageDropped(topic string, err error)
}
