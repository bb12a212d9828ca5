package domain

import "time"

const (
	ACTOR_ID_MASTER  = "master"
	ACTOR_ID_MQTT    = "mqtt"
	ACTOR_ID_LIMITER = "limiter"
)

// MessageHandler receives a raw bus message. It may be called from any goroutine.
type MessageHandler func(topic string, payload []byte)

type SubscribeRequest struct {
	ActorRequestMixIn
	Topic   string
	Handler MessageHandler
}

type SubscribeResponse struct {
	ActorResponseMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

// RestoreDefaultLimitRequest asks the limiter to push the default limit one
// last time and stop acting on telemetry.
type RestoreDefaultLimitRequest struct {
	ActorRequestMixIn
}

type RestoreDefaultLimitResponse struct {
	ActorResponseMixIn
	Limit     int
	Published bool
}

type GetLimiterStateRequest struct {
	ActorRequestMixIn
}

type GetLimiterStateResponse struct {
	ActorResponseMixIn
	State LimiterState
}

type LimiterState struct {
	Feed         float64   `json:"feed"`
	Burn         float64   `json:"burn"`
	CurrentLimit int       `json:"current_limit"`
	LastSetLimit time.Time `json:"last_set_limit"`
	MaxLimit     int       `json:"max_limit"`
	DefaultLimit int       `json:"default_limit"`
	Actuating    bool      `json:"actuating"`
	Restored     bool      `json:"restored"`
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
