package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

// ErrQueueFull is returned by Deliver in async mode when the queue is full.
var ErrQueueFull = errors.New("notification queue full")

// Message is one outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
	// Kind tags the message for status reporting, e.g. "verify" or "reset".
	Kind string
}

// Result is the final outcome of delivering a Message.
type Result struct {
	Message  Message
	Attempts int
	Err      error
}

// StatusFunc receives the outcome of every delivery.
type StatusFunc func(ctx context.Context, res Result)

// DispatcherConfig tunes delivery.
type DispatcherConfig struct {
	// Async queues messages for the Run loop instead of sending in Deliver.
	Async bool
	// Timeout bounds a single send attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first failure.
	Retries uint64
	// Backoff is the base delay between attempts.
	Backoff   time.Duration
	QueueSize int
	OnStatus  StatusFunc
}

// Dispatcher wraps a Notifier with per-attempt timeouts and bounded
// exponential retry. In async mode Run must be running to drain the queue.
type Dispatcher struct {
	notifier Notifier
	cfg      DispatcherConfig

	queue    chan Message
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(n Notifier, cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &Dispatcher{
		notifier: n,
		cfg:      cfg,
		queue:    make(chan Message, cfg.QueueSize),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Async reports whether Deliver only enqueues.
func (d *Dispatcher) Async() bool { return d.cfg.Async }

// Deliver sends msg. In sync mode it blocks until the final attempt and
// returns its error. In async mode it only enqueues.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	if !d.cfg.Async {
		return d.send(ctx, msg)
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the async queue until Stop is called. Messages still queued at
// that point are sent before Run returns.
func (d *Dispatcher) Run() {
	defer close(d.exited)
	log.Info().Msg("Starting notification dispatcher...")

	for {
		select {
		case <-d.done:
			for {
				select {
				case msg := <-d.queue:
					d.send(context.Background(), msg)
				default:
					log.Info().Msg("Stopping notification dispatcher.")
					return
				}
			}
		case msg := <-d.queue:
			d.send(context.Background(), msg)
		}
	}
}

// Stop signals Run to finish and waits for it until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.done) })
	select {
	case <-d.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	attempts := 0
	backoff := retry.WithMaxRetries(d.cfg.Retries, retry.NewExponential(d.cfg.Backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()

		err := d.notifier.Send(attemptCtx, msg.To, msg.Subject, msg.Body)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotConfigured) {
			return err
		}
		log.Warn().Err(err).Str("to", msg.To).Int("attempt", attempts).Msg("Notification attempt failed")
		return retry.RetryableError(err)
	})

	if err != nil {
		log.Error().Err(err).Str("to", msg.To).Str("kind", msg.Kind).Int("attempts", attempts).Msg("Notification delivery failed")
	}
	if d.cfg.OnStatus != nil {
		d.cfg.OnStatus(ctx, Result{Message: msg, Attempts: attempts, Err: err})
	}
	return err
}
