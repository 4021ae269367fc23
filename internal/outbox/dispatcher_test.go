package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLeaser struct {
	ids   [][]uuid.UUID
	call  int
	delay time.Duration
}

func (f *fakeLeaser) Lease(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.call >= len(f.ids) {
		return nil, nil
	}
	ids := f.ids[f.call]
	f.call++
	return ids, nil
}

type fakeBatcher struct {
	result  BatchResult
	delay   time.Duration
	calls   int
}

func (f *fakeBatcher) Process(ctx context.Context, ids []uuid.UUID) BatchResult {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result
}

// testDispatcherMetrics is registered once: NewMetrics registers with the
// default Prometheus registry, which rejects a second registration of the
// same names.
var testDispatcherMetrics = NewMetrics("outbox_dispatcher_test")

func newTestDispatcher(lease leaser, batch batcher, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		lease:   lease,
		batch:   batch,
		metrics: testDispatcherMetrics,
		logger:  zap.NewNop(),
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func TestDispatcher_StopDrainsInFlightBeforeReturning(t *testing.T) {
	lease := &fakeLeaser{ids: [][]uuid.UUID{{uuid.New(), uuid.New()}}}
	batch := &fakeBatcher{result: BatchResult{Processed: 2}, delay: 50 * time.Millisecond}
	d := newTestDispatcher(lease, batch, DispatcherConfig{
		PollInterval:    10 * time.Millisecond,
		LeaseBatchSize:  10,
		ProcessChunk:    10,
		ShutdownTimeout: time.Second,
	})

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	d.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.Equal(t, int64(0), d.inFlight.Load())
}

func TestDispatcher_StopTimesOutIfBatchNeverResolves(t *testing.T) {
	lease := &fakeLeaser{ids: [][]uuid.UUID{{uuid.New()}}}
	batch := &fakeBatcher{result: BatchResult{Processed: 1}, delay: time.Hour}
	d := newTestDispatcher(lease, batch, DispatcherConfig{
		PollInterval:    5 * time.Millisecond,
		LeaseBatchSize:  10,
		ProcessChunk:    10,
		ShutdownTimeout: 20 * time.Millisecond,
	})

	go d.Run(context.Background())
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	d.Stop()
	elapsed := time.Since(start)

	require.Less(t, elapsed, time.Second, "Stop should honor ShutdownTimeout, not block forever")
}

func TestDispatcher_ContextCancellationStopsLoop(t *testing.T) {
	lease := &fakeLeaser{ids: nil}
	batch := &fakeBatcher{}
	d := newTestDispatcher(lease, batch, DispatcherConfig{
		PollInterval:   5 * time.Millisecond,
		LeaseBatchSize: 10,
		ProcessChunk:   10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestDispatcher_EmptyLeaseDoesNotCallBatcher(t *testing.T) {
	lease := &fakeLeaser{ids: [][]uuid.UUID{nil}}
	batch := &fakeBatcher{}
	d := newTestDispatcher(lease, batch, DispatcherConfig{
		PollInterval:   5 * time.Millisecond,
		LeaseBatchSize: 10,
		ProcessChunk:   10,
	})

	err := d.pollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, batch.calls)
}
