package actor

import (
	"sync"

	"github.com/berfenger/zeroexport2mqtt/internal/config"
	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// TestBroker is an in-memory stand-in for the MQTT broker used by the dummy
// MQTT actor.
type TestBroker struct {
	mu        sync.Mutex
	handlers  map[string]domain.MessageHandler
	published []domain.PublishMessageRequest
	failWith  error
}

func NewTestBroker() *TestBroker {
	return &TestBroker{handlers: map[string]domain.MessageHandler{}}
}

// Inject delivers a message as if it came from the broker.
func (b *TestBroker) Inject(topic string, payload string) bool {
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	if ok {
		h(topic, []byte(payload))
	}
	return ok
}

func (b *TestBroker) Published() []domain.PublishMessageRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.PublishMessageRequest(nil), b.published...)
}

func (b *TestBroker) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var topics []string
	for t := range b.handlers {
		topics = append(topics, t)
	}
	return topics
}

// FailPublish makes every following publish fail with err. nil restores.
func (b *TestBroker) FailPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWith = err
}

func (b *TestBroker) subscribe(topic string, h domain.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
}

func (b *TestBroker) publish(msg domain.PublishMessageRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	b.published = append(b.published, msg)
	return nil
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, broker *TestBroker, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:        config,
		behavior:      actor.NewBehavior(),
		stash:         &actorutil.Stash{},
		subscriptions: NewSubscriptions(),
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(func(ctx actor.Context) {
		act.DummyReceive(ctx, broker)
	})
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context, broker *TestBroker) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "connected",
		})
	case domain.SubscribeRequest:
		state.subscriptions.Set(msg.Topic, msg.Handler)
		broker.subscribe(msg.Topic, msg.Handler)
		state.respondSubscribed(ctx, msg, nil)
	case domain.PublishMessageRequest:
		err := broker.publish(msg)
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		})
	}
}
