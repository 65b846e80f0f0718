package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/sethvargo/go-retry"
)

var (
	ErrQueueFull        = errors.New("mail queue is full")
	ErrDispatcherClosed = errors.New("mail dispatcher is closed")
)

// DispatcherConfig tunes a Dispatcher. Zero values fall back to defaults.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxRetries  int
	BaseBackoff time.Duration
	SendTimeout time.Duration
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
}

// Dispatcher is a Sender that queues messages and delivers them from a fixed
// pool of workers, retrying failures with exponential backoff. Send never
// blocks: when the queue is full the message is dropped.
type Dispatcher struct {
	next     Sender
	logger   logging.Logger
	recorder DeliveryRecorder
	cfg      DispatcherConfig

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers goroutines delivering through next.
// recorder may be nil.
func NewDispatcher(next Sender, cfg DispatcherConfig, logger logging.Logger, recorder DeliveryRecorder) *Dispatcher {
	cfg.applyDefaults()
	if recorder == nil {
		recorder = nopRecorder{}
	}

	d := &Dispatcher{
		next:     next,
		logger:   logger,
		recorder: recorder,
		cfg:      cfg,
		queue:    make(chan Message, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Send enqueues msg and returns immediately. The request context is not
// carried into delivery, which outlives the request.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.recorder.RecordMailDelivery(metrics.MailDropped)
		d.logger.Warn(ctx, "mail queue full, message dropped", "to", msg.To, "subject", msg.Subject)
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered,
// or for ctx to end. Calling Close twice is safe.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx := context.Background()
	backoff := retry.WithMaxRetries(uint64(d.cfg.MaxRetries), retry.NewExponential(d.cfg.BaseBackoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			d.recorder.RecordMailDelivery(metrics.MailRetried)
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()

		if err := d.next.Send(sendCtx, msg); err != nil {
			d.logger.Debug(ctx, "mail delivery attempt failed", "to", msg.To, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		d.recorder.RecordMailDelivery(metrics.MailFailed)
		d.logger.Error(ctx, "mail delivery failed", "to", msg.To, "subject", msg.Subject, "attempts", attempt, "error", err)
		return
	}

	d.recorder.RecordMailDelivery(metrics.MailSent)
	d.logger.Info(ctx, "mail sent", "to", msg.To, "subject", msg.Subject)
}
