package service

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const LIMITER_TOPIC = "inverter/ctrl/limit_nonpersistent_absolute"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type published struct {
	topic   string
	payload string
}

type fakePublisher struct {
	messages []published
	err      error
}

func (p *fakePublisher) Publish(topic string, payload string) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{topic: topic, payload: payload})
	return nil
}

func (p *fakePublisher) payloads() []string {
	var out []string
	for _, m := range p.messages {
		out = append(out, m.payload)
	}
	return out
}

type countingObserver struct {
	feed, burn  float64
	set, failed []int
}

func (o *countingObserver) FeedUpdated(w float64) { o.feed = w }
func (o *countingObserver) BurnUpdated(w float64) { o.burn = w }
func (o *countingObserver) LimitSet(w int)        { o.set = append(o.set, w) }
func (o *countingObserver) LimitFailed(w int)     { o.failed = append(o.failed, w) }

func newTestController(topic string) (*LimitController, *fakePublisher, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	pub := &fakePublisher{}
	ctrl := NewLimitController(LimitControllerConfig{
		MaxLimit:     800,
		DefaultLimit: 800,
		LimiterTopic: topic,
	}, pub, zap.Must(zap.NewDevelopment()), WithClock(clock.Now))
	return ctrl, pub, clock
}

func TestThresholdProperties(t *testing.T) {

	require := require.New(t)

	require.Equal(200*time.Second, Threshold(DEFAULT_MAX_DWELL, 1))

	prev := Threshold(DEFAULT_MAX_DWELL, 1)
	for drift := 1.0; drift <= 10000; drift += 0.5 {
		th := Threshold(DEFAULT_MAX_DWELL, drift)
		require.LessOrEqual(th, prev, "threshold must not increase with drift (drift = %.1f)", drift)
		prev = th
	}
	require.InDelta(9.42, Threshold(DEFAULT_MAX_DWELL, 451).Seconds(), 0.01)
	require.InDelta(115.47, Threshold(DEFAULT_MAX_DWELL, 3).Seconds(), 0.01)
}

func TestSendsAfterDwellAndHoldsOnSmallDrift(t *testing.T) {

	require := require.New(t)

	ctrl, pub, clock := newTestController(LIMITER_TOPIC)
	clock.Advance(300 * time.Second)

	ctrl.OnFeed(200)
	require.Empty(pub.messages, "feed alone never actuates")

	ctrl.OnBurn(250)
	require.Equal([]published{{topic: LIMITER_TOPIC, payload: "450W"}}, pub.messages)
	require.Equal(450, ctrl.CurrentLimit())
	require.Equal(clock.Now(), ctrl.State().LastSetLimit)

	// desired 452 right after the change: drift 3, threshold ~115s
	ctrl.OnBurn(252)
	require.Len(pub.messages, 1)
	require.Equal(450, ctrl.CurrentLimit())

	d, err := ctrl.Evaluate(452)
	require.NoError(err)
	require.Equal(DecisionSkipDwell, d)

	clock.Advance(116 * time.Second)
	d, err = ctrl.Evaluate(452)
	require.NoError(err)
	require.Equal(DecisionSent, d)
	require.Equal([]string{"450W", "452W"}, pub.payloads())
}

func TestNoResendForUnchangedDesired(t *testing.T) {

	ctrl, pub, clock := newTestController(LIMITER_TOPIC)
	clock.Advance(time.Hour)

	d, err := ctrl.Evaluate(450)
	require.NoError(t, err)
	require.Equal(t, DecisionSent, d)

	d, err = ctrl.Evaluate(450)
	require.NoError(t, err)
	assert.Equal(t, DecisionSkipDwell, d, "drift 1 means a 200s dwell")

	clock.Advance(201 * time.Second)
	d, err = ctrl.Evaluate(450.2)
	require.NoError(t, err)
	assert.Equal(t, DecisionUnchanged, d, "dwell elapsed but rounded value is already applied")
	assert.Len(t, pub.messages, 1)
}

func TestNeverSendsNonPositive(t *testing.T) {

	ctrl, pub, clock := newTestController(LIMITER_TOPIC)
	clock.Advance(24 * time.Hour)

	for _, desired := range []float64{0, -0.1, -350} {
		d, err := ctrl.Evaluate(desired)
		require.NoError(t, err)
		assert.Equal(t, DecisionSkipNonPositive, d)
	}

	ctrl.OnFeed(100)
	ctrl.OnBurn(-400)
	assert.Empty(t, pub.messages)
	assert.Equal(t, 0, ctrl.CurrentLimit())
}

func TestSendClampsAndRounds(t *testing.T) {

	require := require.New(t)

	ctrl, pub, _ := newTestController(LIMITER_TOPIC)

	d, err := ctrl.Send(5000)
	require.NoError(err)
	require.Equal(DecisionSent, d)
	require.Equal(800, ctrl.CurrentLimit())

	d, err = ctrl.Send(801.4)
	require.NoError(err)
	require.Equal(DecisionUnchanged, d, "clamped value equals current limit")

	_, err = ctrl.Send(449.5)
	require.NoError(err)
	require.Equal([]string{"800W", "450W"}, pub.payloads())
}

func TestHugeReadingsNeverExceedMaxLimit(t *testing.T) {

	require := require.New(t)

	ctrl, pub, clock := newTestController(LIMITER_TOPIC)
	clock.Advance(300 * time.Second)

	d, err := ctrl.Evaluate(1e300)
	require.NoError(err)
	require.Equal(DecisionSent, d)
	require.Equal(800, ctrl.CurrentLimit())
	require.Equal([]string{"800W"}, pub.payloads())

	d, err = ctrl.Send(math.Inf(1))
	require.NoError(err)
	require.Equal(DecisionUnchanged, d, "+Inf clamps to max limit")

	_, err = ctrl.Send(-1e300)
	require.NoError(err)
	require.Equal(0, ctrl.CurrentLimit())
	require.Equal([]string{"800W", "0W"}, pub.payloads())

	d, err = ctrl.Send(math.NaN())
	require.NoError(err)
	require.Equal(DecisionSkipNonFinite, d)
	require.Len(pub.payloads(), 2)
}

func TestOverflowingSumIsSkipped(t *testing.T) {

	require := require.New(t)

	ctrl, pub, clock := newTestController(LIMITER_TOPIC)
	clock.Advance(300 * time.Second)

	ctrl.OnFeed(1e308)
	ctrl.OnBurn(1e308)
	require.Empty(pub.messages)
	require.Equal(0, ctrl.CurrentLimit())

	d, err := ctrl.Evaluate(math.Inf(-1))
	require.NoError(err)
	require.Equal(DecisionSkipNonFinite, d)

	// a sane reading afterwards is still handled
	ctrl.OnFeed(200)
	ctrl.OnBurn(250)
	require.Equal([]string{"450W"}, pub.payloads())
	for _, p := range pub.payloads() {
		require.False(strings.HasPrefix(p, "-"), "negative limit published: %s", p)
	}
}

func TestLargeDriftShortensDwell(t *testing.T) {

	ctrl, pub, clock := newTestController(LIMITER_TOPIC)
	clock.Advance(time.Hour)
	_, err := ctrl.Evaluate(100)
	require.NoError(t, err)

	// drift 701 => threshold ~7.6s
	clock.Advance(7 * time.Second)
	d, _ := ctrl.Evaluate(800)
	assert.Equal(t, DecisionSkipDwell, d)

	clock.Advance(1 * time.Second)
	d, _ = ctrl.Evaluate(800)
	assert.Equal(t, DecisionSent, d)
	assert.Equal(t, []string{"100W", "800W"}, pub.payloads())
}

func TestPublishFailureKeepsState(t *testing.T) {

	require := require.New(t)

	ctrl, pub, clock := newTestController(LIMITER_TOPIC)
	obs := &countingObserver{}
	WithObserver(obs)(ctrl)

	clock.Advance(300 * time.Second)
	before := ctrl.State()

	pub.err = errors.New("MQTT publish timed out")
	d, err := ctrl.Evaluate(450)
	require.Equal(DecisionFailed, d)
	require.ErrorIs(err, pub.err)
	require.Equal(before, ctrl.State(), "state unchanged on publish failure")
	require.Equal([]int{450}, obs.failed)

	// next evaluation retries naturally
	pub.err = nil
	d, err = ctrl.Evaluate(450)
	require.NoError(err)
	require.Equal(DecisionSent, d)
	require.Equal([]int{450}, obs.set)
}

func TestRestoreDefaultBypassesDwell(t *testing.T) {

	require := require.New(t)

	ctrl, pub, clock := newTestController(LIMITER_TOPIC)
	clock.Advance(300 * time.Second)
	ctrl.OnFeed(200)
	ctrl.OnBurn(250)
	require.Equal(450, ctrl.CurrentLimit())

	d, err := ctrl.RestoreDefault()
	require.NoError(err)
	require.Equal(DecisionSent, d)
	require.Equal([]string{"450W", "800W"}, pub.payloads())
	require.True(ctrl.Restored())

	d, err = ctrl.RestoreDefault()
	require.NoError(err)
	require.Equal(DecisionUnchanged, d, "restore runs once")
	require.Len(pub.messages, 2)
}

func TestWithoutLimiterTopicOnlyTracks(t *testing.T) {

	ctrl, pub, clock := newTestController("")
	obs := &countingObserver{}
	WithObserver(obs)(ctrl)
	clock.Advance(time.Hour)

	ctrl.OnFeed(120)
	ctrl.OnBurn(330)
	d, err := ctrl.RestoreDefault()
	require.NoError(t, err)

	assert.Equal(t, DecisionDisabled, d)
	assert.Empty(t, pub.messages)
	assert.Equal(t, 120.0, ctrl.State().Feed)
	assert.Equal(t, 330.0, ctrl.State().Burn)
	assert.Equal(t, 330.0, obs.burn)
	assert.False(t, ctrl.State().Actuating)
}
