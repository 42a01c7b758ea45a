// Package events is the in-process message dispatcher that connects domain
// event producers to the handlers reacting to them.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Event is anything that can be published. EventName is the subscription key.
type Event interface {
	EventName() string
}

// Handler reacts to one published event.
type Handler func(ctx context.Context, event Event) error

// Publisher is what producers depend on.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Dispatcher delivers events synchronously to every handler subscribed to
// the event's name, in subscription order. A failing handler does not stop
// delivery to the others; all failures are returned joined.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger

	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewDispatcher creates a dispatcher. A nil registerer keeps the counters
// unregistered.
func NewDispatcher(logger zerolog.Logger, reg prometheus.Registerer) *Dispatcher {
	factory := promauto.With(reg)
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careclaims",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events published, by event name.",
		}, []string{"event"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careclaims",
			Subsystem: "events",
			Name:      "handler_failures_total",
			Help:      "Event handler invocations that returned an error, by event name.",
		}, []string{"event"}),
	}
}

func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

func (d *Dispatcher) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, event := range events {
		name := event.EventName()
		d.published.WithLabelValues(name).Inc()

		d.mu.RLock()
		handlers := d.handlers[name]
		d.mu.RUnlock()

		for _, h := range handlers {
			if err := h(ctx, event); err != nil {
				d.failed.WithLabelValues(name).Inc()
				d.logger.Error().Err(err).Str("event", name).Msg("event handler failed")
				errs = append(errs, fmt.Errorf("handle %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Recorder is a Publisher that keeps everything it receives. Tests use it to
// assert on produced events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the published events with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
