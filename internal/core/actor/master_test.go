package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/zeroexport2mqtt/internal/adapter/actor"
	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/metrics"
	"github.com/berfenger/zeroexport2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.Limiter.MaxDwellSeconds = 0.01
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	broker := adactor.NewTestBroker()
	m := metrics.NewLimiterMetrics(prometheus.NewRegistry())

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(&cfg, func(*adactor.Subscriptions) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, broker, logger)
		}, m, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(broker.Topics()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"inverter/status", "smartmeter/power"}, broker.Topics())

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")
	assert.Equal(t, "limiter=running,mqtt=connected", healthResp.State)

	time.Sleep(50 * time.Millisecond)
	broker.Inject("inverter/status", `{"payload":{"power":300.4}}`)
	broker.Inject("smartmeter/power", "150")

	require.Eventually(t, func() bool {
		return len(broker.Published()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "inverter/ctrl/limit", broker.Published()[0].Topic)
	assert.Equal(t, "450W", broker.Published()[0].Payload)

	res, err = context.RequestFuture(pid, domain.GetLimiterStateRequest{}, time.Second).Result()
	require.NoError(t, err)
	stateResp, ok := res.(domain.GetLimiterStateResponse)
	require.True(t, ok)
	assert.Equal(t, 450, stateResp.State.CurrentLimit)
	assert.Equal(t, 800, stateResp.State.MaxLimit)

	res, err = context.RequestFuture(pid, domain.RestoreDefaultLimitRequest{}, time.Second).Result()
	require.NoError(t, err)
	restoreResp, ok := res.(domain.RestoreDefaultLimitResponse)
	require.True(t, ok)
	assert.NoError(t, restoreResp.GetResponseError())
	assert.True(t, restoreResp.Published)
	assert.Equal(t, 800, restoreResp.Limit)
	require.Len(t, broker.Published(), 2)
	assert.Equal(t, "800W", broker.Published()[1].Payload)

	res, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, "limiter=restored,mqtt=connected", res.(domain.ActorHealthResponse).State)

	require.NoError(t, context.StopFuture(pid).Wait())

	as.Shutdown()
}
