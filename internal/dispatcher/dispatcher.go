// Package dispatcher routes write events by command name. Buffered commands
// get their own queue and worker goroutine, so publishers such as the
// disposal recorder never wait on storage.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrQueueFull is returned when a non-blocking queue has no room. The
	// event is dropped.
	ErrQueueFull = errors.New("queue full")
	// ErrUnknownCommand is returned for a command without a handler.
	ErrUnknownCommand = errors.New("unknown command")
)

// Queued is the result of an event accepted by a buffered handler.
const Queued = "queued"

// Event is a unit of work routed by command name, e.g. "waste:record".
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is the subset of *slog.Logger the dispatcher uses.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	queueSize int
	blocking  bool
	logged    bool
}

// Buffered runs the handler on its own goroutine behind a queue of size
// events.
func Buffered(size int) Option {
	return func(o *options) { o.queueSize = size }
}

// Blocking makes a full queue wait for room instead of dropping the event.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs each event at debug level and failures at error level.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// queue is the buffer and counters of one buffered command.
type queue struct {
	events    chan Event
	attrs     metric.MeasurementOption
	processed atomic.Int64
	dropped   atomic.Int64
}

type instruments struct {
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	duration  metric.Float64Histogram
	depth     metric.Int64ObservableGauge
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	inst   instruments

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	queues   map[string]*queue
	closed   bool
	wg       sync.WaitGroup
}

// New creates a dispatcher. Instruments come from the global OTel meter
// provider, which is a no-op unless one is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]*queue),
	}
	if err := d.instrument(meter()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) instrument(m metric.Meter) error {
	var err error
	d.inst.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Events handled by buffered handlers"))
	if err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}
	d.inst.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events rejected because their queue was full"))
	if err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	d.inst.duration, err = m.Float64Histogram("dispatcher.handler.duration",
		metric.WithDescription("Time spent in a handler"),
		metric.WithUnit("ms"))
	if err != nil {
		return fmt.Errorf("creating duration histogram: %w", err)
	}
	d.inst.depth, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in each queue"),
		metric.WithInt64Callback(d.observeDepth))
	if err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeDepth(_ context.Context, o metric.Int64Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, q := range d.queues {
		o.Observe(int64(len(q.events)), q.attrs)
	}
	return nil
}

// Register adds a handler for command, replacing any previous one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	attrs := metric.WithAttributes(attribute.String("command", command))
	h = d.timed(attrs, h)
	if o.logged {
		h = d.withLogging(command, h)
	}
	if o.queueSize > 0 {
		h = d.enqueue(command, d.startQueue(command, attrs, o, h), o.blocking)
	}

	d.mu.Lock()
	d.handlers[command] = h
	d.mu.Unlock()
}

// Dispatch routes an event to its handler. Buffered handlers return Queued.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	return h(e)
}

// HasHandler reports whether command is registered.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

func (d *Dispatcher) startQueue(command string, attrs metric.MeasurementOption, o options, h HandlerFunc) *queue {
	q := &queue{events: make(chan Event, o.queueSize), attrs: attrs}

	d.mu.Lock()
	if old, ok := d.queues[command]; ok && !d.closed {
		close(old.events)
	}
	d.queues[command] = q
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range q.events {
			// Logged handlers report their own failures.
			if _, err := h(e); err != nil && !o.logged {
				d.logger.Error("buffered handler failed", "command", command, "error", err)
			}
			q.processed.Add(1)
			d.inst.processed.Add(context.Background(), 1, attrs)
		}
	}()
	return q
}

func (d *Dispatcher) enqueue(command string, q *queue, blocking bool) HandlerFunc {
	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}
		if blocking {
			q.events <- e
			return Queued, nil
		}
		select {
		case q.events <- e:
			return Queued, nil
		default:
			q.dropped.Add(1)
			d.inst.dropped.Add(context.Background(), 1, q.attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) timed(attrs metric.MeasurementOption, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		result, err := h(e)
		d.inst.duration.Record(context.Background(), float64(time.Since(start).Microseconds())/1000, attrs)
		return result, err
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "payload", fmt.Sprintf("%T", e.Payload))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		return result, nil
	}
}

// Close stops accepting buffered events and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q.events)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// QueueLen returns the number of events waiting for command.
func (d *Dispatcher) QueueLen(command string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if q, ok := d.queues[command]; ok {
		return len(q.events)
	}
	return 0
}

// Dropped returns how many events for command were rejected by a full queue.
func (d *Dispatcher) Dropped(command string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if q, ok := d.queues[command]; ok {
		return q.dropped.Load()
	}
	return 0
}

// Processed returns how many queued events for command have been handled.
func (d *Dispatcher) Processed(command string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if q, ok := d.queues[command]; ok {
		return q.processed.Load()
	}
	return 0
}
