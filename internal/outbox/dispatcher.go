package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"outbox-dispatcher/internal/outboxstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DispatcherConfig controls the poll loop's cadence and the width of each
// lease/process cycle.
type DispatcherConfig struct {
	PollInterval    time.Duration
	LeaseBatchSize  int
	ProcessChunk    int
	MaxAttempts     int
	ShutdownTimeout time.Duration
}

// leaser is the subset of LeaseManager the dispatcher depends on.
type leaser interface {
	Lease(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// batcher is the subset of BatchProcessor the dispatcher depends on.
type batcher interface {
	Process(ctx context.Context, ids []uuid.UUID) BatchResult
}

// Dispatcher is the Poll Loop: it leases a batch, hands it to the batch
// processor, and repeats on a fixed cadence until stopped. Shutdown is
// cooperative and bounded: Stop signals the loop to exit at its next
// opportunity and waits up to ShutdownTimeout for in-flight work to drain,
// rather than waiting forever or killing work mid-message.
type Dispatcher struct {
	lease   leaser
	batch   batcher
	metrics *Metrics
	logger  *zap.Logger
	cfg     DispatcherConfig

	shuttingDown atomic.Bool
	inFlight     atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatcher builds a Dispatcher from its collaborators.
func NewDispatcher(store *outboxstore.Store, messages *MessageProcessor, cfg DispatcherConfig, metrics *Metrics, logger *zap.Logger) *Dispatcher {
	if metrics == nil {
		metrics = DefaultMetrics
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		lease:   NewLeaseManager(store),
		batch:   NewBatchProcessor(messages, cfg.ProcessChunk),
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run blocks, polling on cfg.PollInterval, until ctx is canceled or Stop is
// called. Each cycle's duration is subtracted from the next sleep so a slow
// cycle does not compound into an ever-growing backlog of skipped ticks.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("outbox dispatcher starting",
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Int("lease_batch_size", d.cfg.LeaseBatchSize),
		zap.Int("process_chunk", d.cfg.ProcessChunk))

	defer close(d.doneCh)

	for {
		cycleStart := time.Now()
		if err := d.pollOnce(ctx); err != nil {
			d.logger.Error("poll cycle failed", zap.Error(err))
		}

		elapsed := time.Since(cycleStart)
		wait := d.cfg.PollInterval - elapsed
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-d.stopCh:
			d.drain()
			return
		case <-time.After(wait):
		}
	}
}

// Stop signals Run to exit at the end of its current cycle and blocks until
// it does, or until ShutdownTimeout elapses, whichever comes first.
func (d *Dispatcher) Stop() {
	d.shuttingDown.Store(true)
	close(d.stopCh)

	timeout := d.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-d.doneCh:
	case <-time.After(timeout):
		d.logger.Warn("outbox dispatcher shutdown timed out with in-flight work remaining",
			zap.Int64("in_flight", d.inFlight.Load()))
	}
}

// drain waits for the current in-flight batch to fully resolve. Unlike
// Stop's overall timeout, this is unbounded by design: pollOnce already
// owns its own batch and will return on its own once every leased message
// in it has been resolved.
func (d *Dispatcher) drain() {
	for d.inFlight.Load() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	d.logger.Info("outbox dispatcher stopped")
}

func (d *Dispatcher) pollOnce(ctx context.Context) error {
	if d.shuttingDown.Load() {
		return nil
	}

	ids, err := d.lease.Lease(ctx, d.cfg.LeaseBatchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	d.metrics.InFlight.Set(float64(d.inFlight.Add(int64(len(ids)))))
	defer func() {
		d.metrics.InFlight.Set(float64(d.inFlight.Add(-int64(len(ids)))))
	}()

	d.metrics.BatchSize.Observe(float64(len(ids)))
	start := time.Now()
	result := d.batch.Process(ctx, ids)
	d.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())

	d.metrics.ProcessedTotal.Add(float64(result.Processed))
	d.metrics.RetryTotal.Add(float64(result.Retried))
	d.metrics.DLQTotal.Add(float64(result.DeadLettered))
	d.metrics.HandlerErrorsTotal.Add(float64(result.Retried + result.DeadLettered))
	if result.FirstErr != nil {
		d.logger.Error("message processing failed", zap.Error(result.FirstErr))
	}

	d.logger.Debug("poll cycle complete",
		zap.Int("leased", len(ids)),
		zap.Int("processed", result.Processed),
		zap.Int("retried", result.Retried),
		zap.Int("dead_lettered", result.DeadLettered),
		zap.Int("skipped", result.Skipped))

	return nil
}
