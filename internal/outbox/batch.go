package outbox

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// BatchResult tallies what happened to a leased batch, for metrics and logs.
type BatchResult struct {
	Processed     int
	Retried       int
	DeadLettered  int
	Skipped       int
	FirstErr      error
}

// messageHandler is the subset of MessageProcessor the batch processor
// depends on, narrowed so tests can drive chunking and concurrency
// behavior with a fake instead of a live database.
type messageHandler interface {
	Process(ctx context.Context, id uuid.UUID) (Outcome, error)
}

// BatchProcessor partitions a wide lease into narrow chunks and runs each
// chunk's messages through the MessageProcessor concurrently, one chunk at
// a time. Leasing wide and processing narrow bounds how many handler
// invocations are in flight at once without bounding how many rows a single
// poll cycle can claim.
type BatchProcessor struct {
	messages  messageHandler
	chunkSize int
}

// NewBatchProcessor builds a BatchProcessor. chunkSize<=0 is the
// configuration pathology from §9: Process then returns immediately without
// processing any of the leased ids, leaving them leased for a later stale
// recovery rather than guessing an intended concurrency.
func NewBatchProcessor(messages *MessageProcessor, chunkSize int) *BatchProcessor {
	return &BatchProcessor{messages: messages, chunkSize: chunkSize}
}

// Process runs every id in ids through the message processor, chunkSize at
// a time, chunks in sequence, and within the chunk, in parallel.
func (b *BatchProcessor) Process(ctx context.Context, ids []uuid.UUID) BatchResult {
	var result BatchResult
	if b.chunkSize <= 0 {
		return result
	}

	for start := 0; start < len(ids); start += b.chunkSize {
		end := start + b.chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		b.processChunk(ctx, ids[start:end], &result)
	}
	return result
}

func (b *BatchProcessor) processChunk(ctx context.Context, chunk []uuid.UUID, result *BatchResult) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	wg.Add(len(chunk))
	for _, id := range chunk {
		go func(id uuid.UUID) {
			defer wg.Done()
			outcome, err := b.messages.Process(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeProcessed:
				result.Processed++
			case OutcomeRetried:
				result.Retried++
			case OutcomeDeadLettered:
				result.DeadLettered++
			case OutcomeSkipped:
				result.Skipped++
			}
			if err != nil && result.FirstErr == nil {
				result.FirstErr = err
			}
		}(id)
	}
	wg.Wait()
}
