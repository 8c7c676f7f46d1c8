package mail

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"nrkgo.com/accounts/internal/accounts"
	"nrkgo.com/accounts/internal/obs"
)

// ErrQueueFull is returned by Dispatcher.Send when no slot is free.
var ErrQueueFull = errors.New("mail: queue full")

// ErrClosed is returned by Dispatcher.Send after Close.
var ErrClosed = errors.New("mail: dispatcher closed")

type job struct {
	to, subject, body string
}

// Dispatcher queues mail and delivers it from a fixed pool of workers, so the
// request path never waits on the relay.
type Dispatcher struct {
	next  accounts.Mailer
	log   *zap.Logger
	queue chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ accounts.Mailer = (*Dispatcher)(nil)

// NewDispatcher starts workers goroutines delivering through next.
func NewDispatcher(next accounts.Mailer, workers, queueSize int, l *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if l == nil {
		l = obs.Logger()
	}
	d := &Dispatcher{next: next, log: l, queue: make(chan job, queueSize)}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Send enqueues a message and returns immediately.
func (d *Dispatcher) Send(_ context.Context, to, subject, htmlBody string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- job{to: to, subject: subject, body: htmlBody}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		if err := d.next.Send(context.Background(), j.to, j.subject, j.body); err != nil {
			obs.EmailSent("delivery", err)
			d.log.Error("email delivery failed", zap.String("to", j.to), zap.String("subject", j.subject), zap.Error(err))
		}
	}
}

// Close stops accepting mail and waits for the queue to drain or ctx to end.
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
