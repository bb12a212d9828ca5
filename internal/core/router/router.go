// Package router maps bus topics to numeric reading handlers.
package router

import (
	"slices"

	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/core/payload"
	"github.com/berfenger/zeroexport2mqtt/internal/core/port"

	"go.uber.org/zap"
)

type Handler func(reading float64)

type route struct {
	path    []string
	handler Handler
}

// Router is not safe for concurrent use. Its owner serializes Register and
// Dispatch calls.
type Router struct {
	subscriber port.Subscriber
	routes     map[string]route
	subscribed map[string]bool
	deliver    domain.MessageHandler
	drops      port.DropObserver
	logger     *zap.Logger
}

type Option func(*Router)

// WithDelivery replaces the callback handed to the subscriber. The owner uses
// it to hop onto its own goroutine before calling Dispatch.
func WithDelivery(deliver domain.MessageHandler) Option {
	return func(r *Router) {
		r.deliver = deliver
	}
}

func WithDropObserver(drops port.DropObserver) Option {
	return func(r *Router) {
		r.drops = drops
	}
}

func NewRouter(subscriber port.Subscriber, logger *zap.Logger, opts ...Option) *Router {
	r := &Router{
		subscriber: subscriber,
		routes:     make(map[string]route),
		subscribed: make(map[string]bool),
		logger:     logger,
	}
	r.deliver = r.Dispatch
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register routes messages of the topic in spec to handler. Registering the
// same topic again replaces its path and handler.
func (r *Router) Register(spec string, handler Handler) error {
	ts, err := domain.ParseTopicSpec(spec)
	if err != nil {
		return err
	}
	if prev, ok := r.routes[ts.Topic]; ok && !slices.Equal(prev.path, ts.Path) {
		r.logger.Warn("router: topic registered again with a different path, last registration wins",
			zap.String("topic", ts.Topic), zap.Strings("old_path", prev.path), zap.Strings("new_path", ts.Path))
	}
	r.routes[ts.Topic] = route{path: ts.Path, handler: handler}

	if r.subscribed[ts.Topic] {
		return nil
	}
	if err := r.subscriber.Subscribe(ts.Topic, r.deliver); err != nil {
		return err
	}
	r.subscribed[ts.Topic] = true
	r.logger.Debug("router: subscribed", zap.String("topic", ts.Topic), zap.Strings("path", ts.Path))
	return nil
}

// Dispatch extracts the reading of a message and calls its handler. Messages
// for unknown topics and unreadable payloads are dropped.
func (r *Router) Dispatch(topic string, body []byte) {
	rt, ok := r.routes[topic]
	if !ok {
		r.logger.Debug("router: no route", zap.String("topic", topic))
		return
	}
	reading, err := payload.Extract(body, rt.path)
	if err != nil {
		r.logger.Warn("router: dropped message", zap.String("topic", topic), zap.ByteString("payload", body), zap.Error(err))
		if r.drops != nil {
			r.drops.MessageDropped(topic, err)
		}
		return
	}
	rt.handler(reading)
}

func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}
