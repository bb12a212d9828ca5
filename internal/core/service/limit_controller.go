package service

import (
	"fmt"
	"math"
	"time"

	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/core/port"

	"go.uber.org/zap"
)

const DEFAULT_MAX_DWELL = 200 * time.Second

type Decision int

const (
	DecisionSkipNonPositive Decision = iota
	DecisionSkipDwell
	DecisionUnchanged
	DecisionSent
	DecisionFailed
	DecisionDisabled
	DecisionSkipNonFinite
)

func (d Decision) String() string {
	switch d {
	case DecisionSkipNonPositive:
		return "skip_non_positive"
	case DecisionSkipDwell:
		return "skip_dwell"
	case DecisionUnchanged:
		return "unchanged"
	case DecisionSent:
		return "sent"
	case DecisionFailed:
		return "failed"
	case DecisionDisabled:
		return "disabled"
	case DecisionSkipNonFinite:
		return "skip_non_finite"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

type LimitControllerConfig struct {
	MaxLimit     int
	DefaultLimit int
	// LimiterTopic is where commands go. Empty disables actuation.
	LimiterTopic string
	MaxDwell     time.Duration
}

// LimitController tracks feed and burn and throttles the inverter so that
// production follows consumption. Calls must be serialized by the owner.
type LimitController struct {
	cfg       LimitControllerConfig
	publisher port.Publisher
	observer  port.LimiterObserver
	clock     func() time.Time
	logger    *zap.Logger

	startTime    time.Time
	feed         float64
	burn         float64
	currentLimit int
	lastSetLimit time.Time
	restored     bool
}

type LimitControllerOption func(*LimitController)

func WithClock(clock func() time.Time) LimitControllerOption {
	return func(c *LimitController) {
		c.clock = clock
	}
}

func WithObserver(observer port.LimiterObserver) LimitControllerOption {
	return func(c *LimitController) {
		c.observer = observer
	}
}

func NewLimitController(cfg LimitControllerConfig, publisher port.Publisher, logger *zap.Logger, opts ...LimitControllerOption) *LimitController {
	if cfg.MaxDwell <= 0 {
		cfg.MaxDwell = DEFAULT_MAX_DWELL
	}
	c := &LimitController{
		cfg:       cfg,
		publisher: publisher,
		observer:  noopObserver{},
		clock:     time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startTime = c.clock()
	c.lastSetLimit = c.startTime
	return c
}

// Threshold is the minimum time between two limit changes for a given drift.
func (c *LimitController) Threshold(drift float64) time.Duration {
	return Threshold(c.cfg.MaxDwell, drift)
}

func Threshold(maxDwell time.Duration, drift float64) time.Duration {
	return time.Duration(float64(maxDwell) / math.Sqrt(drift))
}

func (c *LimitController) OnFeed(reading float64) {
	c.feed = reading
	c.observer.FeedUpdated(reading)
	c.logger.Info("feed", zap.Duration("runtime", c.runtime()), zap.Float64("watts", reading))
}

func (c *LimitController) OnBurn(reading float64) {
	c.burn = reading
	c.observer.BurnUpdated(reading)
	c.logger.Info("burn", zap.Duration("runtime", c.runtime()), zap.Float64("watts", reading))

	if !c.Actuating() {
		return
	}
	decision, err := c.Evaluate(c.feed + c.burn)
	if err == nil {
		c.logger.Debug("limiter: evaluated", zap.Stringer("decision", decision))
	}
}

// Evaluate sends desired when the time since the last change exceeds the
// dwell threshold for the current drift.
func (c *LimitController) Evaluate(desired float64) (Decision, error) {
	// feed + burn overflows to Inf for huge readings
	if math.IsNaN(desired) || math.IsInf(desired, 0) {
		c.logger.Warn("limiter: skip non finite limit", zap.Float64("desired", desired))
		return DecisionSkipNonFinite, nil
	}
	// feed and burn are not sampled together, the sum may be transiently <= 0
	if desired <= 0 {
		c.logger.Debug("limiter: skip non positive limit", zap.Float64("desired", desired))
		return DecisionSkipNonPositive, nil
	}
	elapsed := c.clock().Sub(c.lastSetLimit)
	drift := math.Abs(desired-float64(c.currentLimit)) + 1
	threshold := c.Threshold(drift)
	if elapsed <= threshold {
		c.logger.Debug("limiter: dwell", zap.Float64("desired", desired), zap.Float64("drift", drift),
			zap.Duration("elapsed", elapsed), zap.Duration("threshold", threshold))
		return DecisionSkipDwell, nil
	}
	return c.Send(desired)
}

// Send rounds and clamps limit to MaxLimit and publishes it unless it is
// already applied.
func (c *LimitController) Send(limit float64) (Decision, error) {
	if !c.Actuating() {
		return DecisionDisabled, nil
	}
	if math.IsNaN(limit) {
		return DecisionSkipNonFinite, nil
	}
	// clamp before converting, out of range floats do not fit an int
	actual := int(math.Max(0, math.Min(math.Round(limit), float64(c.cfg.MaxLimit))))
	if actual == c.currentLimit {
		return DecisionUnchanged, nil
	}
	if err := c.publisher.Publish(c.cfg.LimiterTopic, FormatLimit(actual)); err != nil {
		c.observer.LimitFailed(actual)
		c.logger.Error("limiter: failed to set inverter power limit", zap.Int("limit", actual), zap.Error(err))
		return DecisionFailed, fmt.Errorf("publish limit %d: %w", actual, err)
	}
	c.currentLimit = actual
	c.lastSetLimit = c.clock()
	c.observer.LimitSet(actual)
	c.logger.Info("limiter: set inverter power limit", zap.Duration("runtime", c.runtime()), zap.Int("limit", actual))
	return DecisionSent, nil
}

// RestoreDefault pushes the default limit, ignoring the dwell time. Only the
// first call has an effect.
func (c *LimitController) RestoreDefault() (Decision, error) {
	if c.restored {
		return DecisionUnchanged, nil
	}
	c.restored = true
	c.logger.Info("limiter: restoring default limit", zap.Int("limit", c.cfg.DefaultLimit))
	return c.Send(float64(c.cfg.DefaultLimit))
}

func (c *LimitController) Actuating() bool {
	return c.cfg.LimiterTopic != ""
}

func (c *LimitController) Restored() bool {
	return c.restored
}

func (c *LimitController) CurrentLimit() int {
	return c.currentLimit
}

func (c *LimitController) State() domain.LimiterState {
	return domain.LimiterState{
		Feed:         c.feed,
		Burn:         c.burn,
		CurrentLimit: c.currentLimit,
		LastSetLimit: c.lastSetLimit,
		MaxLimit:     c.cfg.MaxLimit,
		DefaultLimit: c.cfg.DefaultLimit,
		Actuating:    c.Actuating(),
		Restored:     c.restored,
	}
}

func (c *LimitController) runtime() time.Duration {
	return c.clock().Sub(c.startTime).Round(100 * time.Millisecond)
}

func FormatLimit(watts int) string {
	return fmt.Sprintf("%dW", watts)
}

type noopObserver struct{}

func (noopObserver) FeedUpdated(float64) {}
func (noopObserver) BurnUpdated(float64) {}
func (noopObserver) LimitSet(int)        {}
func (noopObserver) LimitFailed(int)     {}

// ensure interface compliance
var _ port.LimiterObserver = noopObserver{}
