package actor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/zeroexport2mqtt/internal/config"
	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/mqtt"
	"github.com/berfenger/zeroexport2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("mqtt: not connected")

const (
	CONNECT_MAX_ELAPSED = 1 * time.Minute
	SUBSCRIBE_TIMEOUT   = 5 * time.Second
)

// Subscriptions outlives MQTTActor restarts so that topics are subscribed
// again after every reconnect.
type Subscriptions struct {
	mu       sync.Mutex
	handlers map[string]domain.MessageHandler
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{handlers: map[string]domain.MessageHandler{}}
}

func (s *Subscriptions) Set(topic string, handler domain.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[topic] = handler
}

func (s *Subscriptions) Get(topic string) (domain.MessageHandler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[topic]
	return h, ok
}

func (s *Subscriptions) Snapshot() map[string]domain.MessageHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.MessageHandler, len(s.handlers))
	for k, v := range s.handlers {
		out[k] = v
	}
	return out
}

type MQTTActor struct {
	config        *config.Config
	behavior      actor.Behavior
	stash         *actorutil.Stash
	client        *mqtt.MQTTClient
	subscriptions *Subscriptions
	logger        *zap.Logger
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type subscribeResult struct {
	Topic string
	Error error
}

func NewMQTTActor(config *config.Config, subscriptions *Subscriptions, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:        config,
		behavior:      actor.NewBehavior(),
		stash:         &actorutil.Stash{},
		subscriptions: subscriptions,
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(mqtt.OptsFromConfig(state.config), nil, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, state.config.MQTT.ConnectTimeout(), CONNECT_MAX_ELAPSED)

	case MQTTConnected:
		state.logger.Info("mqtt@starting connected to MQTT broker",
			zap.String("host", state.config.MQTT.Host), zap.Int("port", state.config.MQTT.Port))

		// subscribe again to everything known so far
		for topic := range state.subscriptions.Snapshot() {
			state.subscribe(ctx, topic)
		}
		state.behavior.Become(state.DefaultReceive)
		state.logger.Debug("mqtt@starting unstash", zap.Int("messages", state.stash.Len()))
		state.stash.UnstashAll(ctx)
	case domain.SubscribeRequest:
		// issued once connected
		state.logger.Debug("mqtt@starting SubscribeRequest", zap.String("topic", msg.Topic))
		state.subscriptions.Set(msg.Topic, msg.Handler)
		state.respondSubscribed(ctx, msg, nil)
	case domain.PublishMessageRequest:
		// never stashed, the requester has given up by the time we connect
		state.logger.Warn("mqtt@starting publish while connecting", zap.String("topic", msg.Topic))
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: ErrNotConnected,
			},
		})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			State:   "connecting",
		})
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: state.client.IsConnected(),
			State:   "connected",
		})
	case domain.SubscribeRequest:
		state.logger.Debug("mqtt@default SubscribeRequest", zap.String("topic", msg.Topic))
		state.subscriptions.Set(msg.Topic, msg.Handler)
		state.subscribe(ctx, msg.Topic)
		state.respondSubscribed(ctx, msg, nil)
	case subscribeResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@default could not subscribe", zap.String("topic", msg.Topic), zap.Error(msg.Error))
			panic(msg.Error)
		}
		state.logger.Debug("mqtt@default subscribed", zap.String("topic", msg.Topic))
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) subscribe(ctx actor.Context, topic string) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Subscribe(topic, mqtt.QOS_AT_MOST_ONCE, func(_ pahomqtt.Client, m pahomqtt.Message) {
		// look up on every message, the handler may have been replaced
		if h, ok := state.subscriptions.Get(m.Topic()); ok {
			h(m.Topic(), m.Payload())
		}
	}, func(err error) {
		root.Send(self, subscribeResult{Topic: topic, Error: err})
	}, SUBSCRIBE_TIMEOUT)
}

func (state *MQTTActor) respondSubscribed(ctx actor.Context, msg domain.SubscribeRequest, err error) {
	if msg.ReplyToRef != nil || ctx.Sender() != nil {
		actorutil.ForRequest(msg).Respond(ctx, domain.SubscribeResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		})
	}
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(topic, payload, mqtt.QOS_AT_LEAST_ONCE, retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, state.config.Limiter.PublishTimeout())
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) stop() {
	if state.client != nil {
		state.logger.Debug("mqtt: disconnect")
		state.client.Disconnect(500 * time.Millisecond)
	}
}
