package notify

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
)

const (
	defaultCountWorkers = 4
	defaultQueueSize    = 1024
	defaultSinkPause    = 5 * time.Second
	defaultDrainTimeout = 5 * time.Second
)

// Sink delivers event to external system
type Sink interface {
	Send(ctx context.Context, ev models.BalanceEvent) error
	Close() error
}

// MultiSink sends event to every sink and joins their errors
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, ev models.BalanceEvent) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Send(ctx, ev))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

type DispatcherConfig struct {
	CountWorkers int
	QueueSize    int           // capacity of every worker queue
	SinkPause    time.Duration // how long workers wait after sink failure
	DrainTimeout time.Duration // how long queued events are sent after stop
}

// Dispatcher queues events and sends them to the sink from several workers
// Every balance is served by a single worker so sink gets events of a balance in commit order
// Events published while the worker queue is full are dropped
type Dispatcher struct {
	pause        time.Duration
	drainTimeout time.Duration
	queues       []chan models.BalanceEvent

	// When sink fails workers wait until the time is up
	waitUntil atomic.Int64

	sink   Sink
	logger logger.Logger
}

func NewDispatcher(cfg DispatcherConfig, sink Sink, logger logger.Logger) *Dispatcher {
	setDefault := func(field *int, def int) {
		if *field <= 0 {
			*field = def
		}
	}
	setDefault(&cfg.CountWorkers, defaultCountWorkers)
	setDefault(&cfg.QueueSize, defaultQueueSize)
	if cfg.SinkPause == 0 {
		cfg.SinkPause = defaultSinkPause
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}

	queues := make([]chan models.BalanceEvent, cfg.CountWorkers)
	for i := range queues {
		queues[i] = make(chan models.BalanceEvent, cfg.QueueSize)
	}

	return &Dispatcher{
		pause:        cfg.SinkPause,
		drainTimeout: cfg.DrainTimeout,
		queues:       queues,
		sink:         sink,
		logger:       logger,
	}
}

func (d *Dispatcher) queueFor(key models.BalanceKey) chan models.BalanceEvent {
	h := fnv.New32a()
	_, _ = h.Write(key.CustomerID[:])
	_, _ = h.Write(key.MerchantID[:])
	return d.queues[h.Sum32()%uint32(len(d.queues))]
}

func (d *Dispatcher) Publish(ev models.BalanceEvent) {
	select {
	case d.queueFor(ev.Balance.Key()) <- ev:
	default:
		d.logger.Warn("Dispatcher queue is full, event dropped", "transaction", ev.Transaction.ID)
	}
}

// Run starts workers. When ctx is done workers send what is left in their queues
// for at most DrainTimeout. Returned channel is closed when all workers stopped
func (d *Dispatcher) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for _, queue := range d.queues {
		wg.Add(1)
		go func() {
			pending := d.worker(ctx, queue)
			d.drain(pending, queue)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		d.logger.Debug("Dispatcher stopped")
	}()

	return idleStopped
}

// worker sends events until ctx is done. Returns the event it could not send because of stop
func (d *Dispatcher) worker(ctx context.Context, queue <-chan models.BalanceEvent) *models.BalanceEvent {
	for {
		// Wait until sink pause is passed or context is done
		waitUntil := time.UnixMilli(d.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil

		case ev := <-queue:
			if ctx.Err() != nil {
				return &ev
			}

			err := d.sink.Send(ctx, ev)
			switch {
			case err != nil && ctx.Err() != nil:
				return &ev
			case err != nil:
				d.logger.Error("Failed to send balance event, pausing", "error", err, "transaction", ev.Transaction.ID, "pause", d.pause)
				d.waitUntil.Store(time.Now().Add(d.pause).UnixMilli())
			default:
				d.logger.Debug("Balance event sent", "transaction", ev.Transaction.ID)
			}
		}
	}
}

// drain sends pending and queued events until the queue is empty, the sink fails or drain timeout passes
func (d *Dispatcher) drain(pending *models.BalanceEvent, queue <-chan models.BalanceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	send := func(ev models.BalanceEvent) bool {
		if err := d.sink.Send(ctx, ev); err != nil {
			d.logger.Error("Failed to send balance event on stop, rest dropped", "error", err, "transaction", ev.Transaction.ID, "count", len(queue))
			return false
		}
		return true
	}

	if pending != nil && !send(*pending) {
		return
	}

	for {
		if ctx.Err() != nil {
			d.logger.Warn("Drain timeout exceeded, balance events dropped", "count", len(queue))
			return
		}

		select {
		case ev := <-queue:
			if !send(ev) {
				return
			}
		default:
			return
		}
	}
}
