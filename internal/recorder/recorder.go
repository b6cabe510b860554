// Package recorder mirrors executed trades and signals to storage without blocking trading.
//
// Records are queued and fanned out by a single worker to every configured sink. Each sink is
// retried with exponential backoff behind its own circuit breaker. Failures are logged and
// counted; they never touch the in-memory account.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Alias1177/PaperTrader/internal/metrics"
	"github.com/Alias1177/PaperTrader/models"
)

// Sink is a best-effort storage target.
type Sink interface {
	Name() string
	PersistTrade(ctx context.Context, trade models.TradeRecord) error
	PersistSignal(ctx context.Context, signal models.SignalRecord) error
}

// Operation names used in StorageError and metrics.
const (
	OpTrade  = "trade"
	OpSignal = "signal"
)

// StorageError is a persistence failure for one sink.
type StorageError struct {
	Sink string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("persist %s to %s: %v", e.Op, e.Sink, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Options configures the queue and the per-sink retry policy.
type Options struct {
	QueueSize       int
	OpTimeout       time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// BreakerFailures is the number of consecutive failed records that opens a sink's breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	// OnError, if set, observes every StorageError after it is logged.
	OnError func(*StorageError)
}

func (o *Options) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 5 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 200 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 2 * time.Second
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
}

type item struct {
	trade  *models.TradeRecord
	signal *models.SignalRecord
}

type target struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker
}

// Recorder implements the execution Recorder contract.
type Recorder struct {
	opts    Options
	targets []target
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan item
	done   chan struct{}
}

// New creates a recorder and starts its worker.
func New(opts Options, sinks ...Sink) *Recorder {
	opts.setDefaults()
	logger := log.With().Str("component", "recorder").Logger()

	r := &Recorder{
		opts:   opts,
		logger: logger,
		queue:  make(chan item, opts.QueueSize),
		done:   make(chan struct{}),
	}
	for _, s := range sinks {
		name := s.Name()
		r.targets = append(r.targets, target{
			sink: s,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    name,
				Timeout: opts.BreakerTimeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= opts.BreakerFailures
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Warn().Str("sink", name).Str("from", from.String()).Str("to", to.String()).Msg("Sink breaker state changed")
				},
			}),
		})
	}

	go r.run()
	return r
}

// RecordTrade queues a closed trade. It never blocks.
func (r *Recorder) RecordTrade(trade models.TradeRecord) {
	r.enqueue(item{trade: &trade}, OpTrade)
}

// RecordSignal queues an executed decision. It never blocks.
func (r *Recorder) RecordSignal(signal models.SignalRecord) {
	r.enqueue(item{signal: &signal}, OpSignal)
}

func (r *Recorder) enqueue(it item, op string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Error().Str("op", op).Msg("Recorder closed, record dropped")
		metrics.RecorderDropped.Inc()
		return
	}
	select {
	case r.queue <- it:
	default:
		r.logger.Error().Str("op", op).Int("queue_size", r.opts.QueueSize).Msg("Recorder queue full, record dropped")
		metrics.RecorderDropped.Inc()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for it := range r.queue {
		r.dispatch(it)
	}
}

func (r *Recorder) dispatch(it item) {
	for _, t := range r.targets {
		op := OpTrade
		persist := func(ctx context.Context) error { return t.sink.PersistTrade(ctx, *it.trade) }
		if it.signal != nil {
			op = OpSignal
			persist = func(ctx context.Context) error { return t.sink.PersistSignal(ctx, *it.signal) }
		}

		if err := r.persist(t, persist); err != nil {
			serr := &StorageError{Sink: t.sink.Name(), Op: op, Err: err}
			r.logger.Error().Err(serr).Str("sink", serr.Sink).Str("op", op).Msg("Persistence failed, in-memory state kept")
			metrics.StorageErrors.WithLabelValues(serr.Sink, op).Inc()
			if r.opts.OnError != nil {
				r.opts.OnError(serr)
			}
		}
	}
}

func (r *Recorder) persist(t target, fn func(ctx context.Context) error) error {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		operation := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), r.opts.OpTimeout)
			defer cancel()
			return fn(ctx)
		}

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = r.opts.InitialInterval
		bo.MaxInterval = r.opts.MaxInterval
		return nil, backoff.Retry(operation, backoff.WithMaxRetries(bo, r.opts.MaxRetries))
	})
	return err
}

// Close stops accepting records and waits for the queue to drain or ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining recorder: %w", ctx.Err())
	}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr)
}
