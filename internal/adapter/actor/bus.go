package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
)

// ActorBus exposes the MQTT actor as a port.Bus for code that is not an actor.
type ActorBus struct {
	root    *actor.RootContext
	mqtt    *actor.PID
	timeout time.Duration
}

func NewActorBus(root *actor.RootContext, mqttActor *actor.PID, timeout time.Duration) *ActorBus {
	return &ActorBus{
		root:    root,
		mqtt:    mqttActor,
		timeout: timeout,
	}
}

// Subscribe is fire and forget. The MQTT actor keeps the subscription and
// issues it whenever it is connected.
func (b *ActorBus) Subscribe(topic string, handler domain.MessageHandler) error {
	b.root.Send(b.mqtt, domain.SubscribeRequest{
		Topic:   topic,
		Handler: handler,
	})
	return nil
}

// Publish blocks until the broker acknowledged the message or the timeout
// expired.
func (b *ActorBus) Publish(topic string, payload string) error {
	res, err := b.root.RequestFuture(b.mqtt, domain.PublishMessageRequest{
		Topic:   topic,
		Payload: payload,
	}, b.timeout).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	resp, ok := res.(domain.PublishMessageResponse)
	if !ok {
		return fmt.Errorf("publish to %s: unexpected response %T", topic, res)
	}
	return resp.GetResponseError()
}

// ensure interface compliance
var _ port.Bus = (*ActorBus)(nil)
