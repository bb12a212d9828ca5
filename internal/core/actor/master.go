package actor

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	adactor "github.com/berfenger/zeroexport2mqtt/internal/adapter/actor"
	"github.com/berfenger/zeroexport2mqtt/internal/config"
	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/metrics"
	. "github.com/berfenger/zeroexport2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const HEALTH_CHECK_TIMEOUT = 1 * time.Second

type MQTTActorProvider func(*adactor.Subscriptions) *adactor.MQTTActor

type MasterOfPuppetsActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	subscriptions      *adactor.Subscriptions
	mqttActor          *actor.PID
	limiterActor       *actor.PID
	mqttActorProvider  MQTTActorProvider
	metrics            *metrics.LimiterMetrics
	baseLogger         *zap.Logger
	logger             *zap.Logger
}

type healthCheckResult struct {
	responses map[string]domain.ActorHealthResponse
	respondTo *actor.PID
}

var children = []string{domain.ACTOR_ID_MQTT, domain.ACTOR_ID_LIMITER}

func NewMasterOfPuppetsActor(config *config.Config, mqttActorProvider MQTTActorProvider, m *metrics.LimiterMetrics, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		subscriptions:     adactor.NewSubscriptions(),
		mqttActorProvider: mqttActorProvider,
		metrics:           m,
		baseLogger:        logger,
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck.reset()

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Limiter child
		limiterActorPID, err := state.startLimiterActor(ctx)
		if err != nil {
			panic(err)
		}
		state.limiterActor = limiterActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
				State:   "unresponsive",
			}
		})
		// Limiter Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.limiterActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_LIMITER,
				Healthy: false,
				State:   "unresponsive",
			}
		})

		ctx.SetReceiveTimeout(HEALTH_CHECK_TIMEOUT)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.RestoreDefaultLimitRequest:
		state.logger.Debug("master@default RestoreDefaultLimitRequest")
		ctx.Forward(state.limiterActor)
	case domain.GetLimiterStateRequest:
		ctx.Forward(state.limiterActor)
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.Id))
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.responses[msg.Id] = msg
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.subscriptions)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startLimiterActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	bus := adactor.NewActorBus(ctx.ActorSystem().Root, state.mqttActor, state.config.Limiter.PublishTimeout())

	limiterProps := actor.PropsFromProducer(func() actor.Actor {
		return NewLimiterActor(state.config, bus, state.metrics, state.baseLogger)
	}, actor.WithSupervisor(supervisor))
	limiterActorPID, err := ctx.SpawnNamed(limiterProps, domain.ACTOR_ID_LIMITER)
	if err != nil {
		return nil, err
	}

	return limiterActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.responses = map[string]domain.ActorHealthResponse{}
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return len(state.responses) == len(children)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range children {
		if !state.responses[id].Healthy {
			return false
		}
	}
	return true
}

// summary renders the child states as "limiter=running,mqtt=connected".
func (state *healthCheckResult) summary() string {
	var parts []string
	for _, id := range children {
		s := "unknown"
		if resp, ok := state.responses[id]; ok && resp.State != "" {
			s = resp.State
		}
		parts = append(parts, id+"="+s)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   state.summary(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
