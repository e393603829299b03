// internal/delivery/worker.go
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WorkerPool runs delivery workers against the claim queue. Each worker
// claims its own batch, so the pool never hands the same delivery to two
// workers.
type WorkerPool struct {
	service      *Service
	workerCount  int
	pollInterval time.Duration
	batchSize    int
	lease        time.Duration

	wg sync.WaitGroup
}

func NewWorkerPool(service *Service, workerCount int, pollInterval time.Duration, batchSize int, lease time.Duration) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize < 1 {
		batchSize = 10
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &WorkerPool{
		service:      service,
		workerCount:  workerCount,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		lease:        lease,
	}
}

// Start launches the workers. They stop when ctx is cancelled; Wait blocks
// until all in-flight deliveries have finished.
func (p *WorkerPool) Start(ctx context.Context) {
	p.service.logger.Info().
		Int("workers", p.workerCount).
		Dur("poll_interval", p.pollInterval).
		Int("batch_size", p.batchSize).
		Msg("starting delivery workers")

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.run(ctx, workerID)
		}(i)
	}
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, workerID int) {
	logger := p.service.logger.With().Int("worker", workerID).Logger()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// Drain anything already due before the first tick.
	p.drain(ctx, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("delivery worker shutting down")
			return
		case <-ticker.C:
			p.drain(ctx, logger)
		}
	}
}

// drain claims and processes batches until the queue is momentarily empty.
func (p *WorkerPool) drain(ctx context.Context, logger zerolog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := p.service.repo.ClaimDue(ctx, p.batchSize, p.lease)
		if err != nil {
			logger.Error().Err(err).Msg("failed to claim due deliveries")
			return
		}
		if len(claimed) == 0 {
			return
		}

		logger.Debug().Int("claimed", len(claimed)).Msg("processing delivery batch")
		for _, d := range claimed {
			if ctx.Err() != nil {
				return
			}
			// Earlier deliveries in the batch may have run long enough for
			// the batch lease to lapse. Re-assert it before each attempt;
			// a lost lease means another worker owns the delivery now.
			if !p.holdsLease(ctx, d, logger) {
				continue
			}
			p.service.Process(ctx, d)
		}

		if len(claimed) < p.batchSize {
			return
		}
	}
}

func (p *WorkerPool) holdsLease(ctx context.Context, d Delivery, logger zerolog.Logger) bool {
	var claimedUntil time.Time
	if d.ClaimedUntil != nil {
		claimedUntil = *d.ClaimedUntil
	}

	held, err := p.service.repo.ExtendClaim(ctx, d.ID, claimedUntil, p.lease)
	if err != nil {
		logger.Error().Err(err).
			Str("delivery_id", d.ID.String()).
			Msg("failed to extend delivery claim")
		return false
	}
	if !held {
		logger.Warn().
			Str("delivery_id", d.ID.String()).
			Msg("claim lease lapsed before processing; leaving delivery for its new owner")
	}
	return held
}
