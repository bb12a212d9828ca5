package actor

import (
	"fmt"

	"github.com/berfenger/zeroexport2mqtt/internal/config"
	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/core/port"
	"github.com/berfenger/zeroexport2mqtt/internal/core/router"
	"github.com/berfenger/zeroexport2mqtt/internal/core/service"
	"github.com/berfenger/zeroexport2mqtt/internal/metrics"
	. "github.com/berfenger/zeroexport2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// LimiterActor owns the topic router and the limit controller. Every
// telemetry message goes through its mailbox, so controller state is only
// touched from one goroutine at a time.
type LimiterActor struct {
	ActorWithStates
	config     *config.Config
	bus        port.Bus
	metrics    *metrics.LimiterMetrics
	router     *router.Router
	controller *service.LimitController

	logger *zap.Logger
}

type inboundMessage struct {
	Topic   string
	Payload []byte
}

func NewLimiterActor(config *config.Config, bus port.Bus, m *metrics.LimiterMetrics, logger *zap.Logger,
	opts ...service.LimitControllerOption) *LimiterActor {
	logger = ActorLogger(domain.ACTOR_ID_LIMITER, logger)
	if m != nil {
		opts = append([]service.LimitControllerOption{service.WithObserver(m)}, opts...)
	}
	act := &LimiterActor{
		ActorWithStates: NewActorWithStates(),
		config:          config,
		bus:             bus,
		metrics:         m,
		logger:          logger,
		controller: service.NewLimitController(service.LimitControllerConfig{
			MaxLimit:     config.Inverter.MaxPower,
			DefaultLimit: config.Inverter.DefaultPower,
			LimiterTopic: config.Topics.InverterLimiter,
			MaxDwell:     config.Limiter.MaxDwell(),
		}, bus, logger, opts...),
	}
	act.Become(LimiterStartingState{actor: act})
	return act
}

func (state *LimiterActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *LimiterActor) health(ctx actor.Context) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_LIMITER,
		Healthy: true,
		State:   state.StateName(),
	})
}

func (state *LimiterActor) limiterState(ctx actor.Context, msg domain.GetLimiterStateRequest) {
	ForRequest(msg).Respond(ctx, domain.GetLimiterStateResponse{
		State: state.controller.State(),
	})
}

func (state *LimiterActor) restoreDefault() domain.RestoreDefaultLimitResponse {
	decision, err := state.controller.RestoreDefault()
	state.logger.Info("limiter: default limit restore", zap.Stringer("decision", decision))
	return domain.RestoreDefaultLimitResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
		Limit:     state.controller.CurrentLimit(),
		Published: decision == service.DecisionSent,
	}
}

// Starting state

type LimiterStartingState struct {
	ActorState
	actor *LimiterActor
}

func (state LimiterStartingState) Name() string {
	return "starting"
}

func (state LimiterStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("limiter@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		opts := []router.Option{
			router.WithDelivery(func(topic string, payload []byte) {
				root.Send(self, inboundMessage{Topic: topic, Payload: payload})
			}),
		}
		if state.actor.metrics != nil {
			opts = append(opts, router.WithDropObserver(state.actor.metrics))
		}
		state.actor.router = router.NewRouter(state.actor.bus, state.actor.logger, opts...)

		ctrl := state.actor.controller
		if err := state.actor.router.Register(state.actor.config.Topics.InverterPower, ctrl.OnFeed); err != nil {
			panic(fmt.Errorf("register inverter power topic: %w", err))
		}
		if err := state.actor.router.Register(state.actor.config.Topics.SmartmeterPower, ctrl.OnBurn); err != nil {
			panic(fmt.Errorf("register smartmeter power topic: %w", err))
		}
		if !ctrl.Actuating() {
			state.actor.logger.Warn("limiter@starting no inverter limiter topic configured, only tracking power")
		}
		state.actor.Become(LimiterRunningState{actor: state.actor})
	case *actor.Restarting:
		state.actor.logger.Warn("limiter@starting restarting")
	default:
		state.actor.logger.Debug("limiter@starting recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Running state

type LimiterRunningState struct {
	ActorState
	actor *LimiterActor
}

func (state LimiterRunningState) Name() string {
	return "running"
}

func (state LimiterRunningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case inboundMessage:
		state.actor.router.Dispatch(msg.Topic, msg.Payload)
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("limiter@running ActorHealthRequest")
		state.actor.health(ctx)
	case domain.GetLimiterStateRequest:
		state.actor.limiterState(ctx, msg)
	case domain.RestoreDefaultLimitRequest:
		state.actor.logger.Debug("limiter@running RestoreDefaultLimitRequest")
		resp := state.actor.restoreDefault()
		state.actor.Become(LimiterRestoredState{actor: state.actor})
		ForRequest(msg).Respond(ctx, resp)
	case *actor.Stopping:
		// stopped without an explicit restore, do it now
		state.actor.logger.Warn("limiter@running stopping before default limit was restored")
		resp := state.actor.restoreDefault()
		if resp.HasResponseError() {
			state.actor.logger.Error("limiter@running could not restore default limit", zap.Error(resp.GetResponseError()))
		}
		state.actor.Become(LimiterRestoredState{actor: state.actor})
	default:
		state.actor.logger.Debug("limiter@running recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Restored state. The default limit has been pushed, telemetry is ignored.

type LimiterRestoredState struct {
	ActorState
	actor *LimiterActor
}

func (state LimiterRestoredState) Name() string {
	return "restored"
}

func (state LimiterRestoredState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case inboundMessage:
		state.actor.logger.Debug("limiter@restored ignoring message", zap.String("topic", msg.Topic))
	case domain.ActorHealthRequest:
		state.actor.health(ctx)
	case domain.GetLimiterStateRequest:
		state.actor.limiterState(ctx, msg)
	case domain.RestoreDefaultLimitRequest:
		ForRequest(msg).Respond(ctx, domain.RestoreDefaultLimitResponse{
			Limit: state.actor.controller.CurrentLimit(),
		})
	default:
		state.actor.logger.Debug("limiter@restored recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
