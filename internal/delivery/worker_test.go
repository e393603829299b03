// internal/delivery/worker_test.go
package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// claimOnceRepo hands each queued delivery to exactly one caller, the
// exclusivity the SKIP LOCKED claim provides in Postgres.
type claimOnceRepo struct {
	*fakeRepo
	queueMu sync.Mutex
	queue   []Delivery
}

func (c *claimOnceRepo) ClaimDue(ctx context.Context, batchSize int, lease time.Duration) ([]Delivery, error) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	n := batchSize
	if n > len(c.queue) {
		n = len(c.queue)
	}
	claimed := c.queue[:n]
	c.queue = c.queue[n:]

	until := time.Now().Add(lease)
	for i := range claimed {
		claimed[i].ClaimedUntil = &until
	}
	return claimed, nil
}

func TestWorkerPoolProcessesQueuedDeliveries(t *testing.T) {
	var hits int32
	var hitsMu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsMu.Lock()
		hits++
		hitsMu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newEngineFixture(t, server.URL, nil)

	repo := &claimOnceRepo{fakeRepo: f.repo}
	for i := 0; i < 5; i++ {
		repo.queue = append(repo.queue, f.delivery(0))
	}
	f.service.repo = repo

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(f.service, 3, 10*time.Millisecond, 2, time.Minute)
	pool.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.repo.mu.Lock()
		done := len(f.repo.delivered)
		f.repo.mu.Unlock()
		if done == 5 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	pool.Wait()

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	assert.Len(t, f.repo.delivered, 5)
	assert.Len(t, f.repo.attempts, 5, "each delivery is attempted exactly once")

	hitsMu.Lock()
	defer hitsMu.Unlock()
	assert.EqualValues(t, 5, hits)

	assert.Equal(t, 5, f.repo.extendCalls, "lease is re-asserted once per delivery")
}

// A batch whose earlier attempts run long can outlive its claim lease, at
// which point another worker may legitimately re-claim the tail of the
// batch. The original claimant must detect the lost lease and skip, or two
// workers would run the same attempt number concurrently.
func TestWorkerSkipsDeliveryWhoseLeaseLapsed(t *testing.T) {
	var hits int32
	var hitsMu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsMu.Lock()
		hits++
		hitsMu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newEngineFixture(t, server.URL, nil)

	repo := &claimOnceRepo{fakeRepo: f.repo}
	lapsed := f.delivery(0)
	repo.queue = []Delivery{f.delivery(0), lapsed, f.delivery(0)}
	f.repo.lostLeases = map[uuid.UUID]bool{lapsed.ID: true}
	f.service.repo = repo

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(f.service, 1, 10*time.Millisecond, 3, time.Minute)
	pool.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.repo.mu.Lock()
		done := len(f.repo.delivered)
		f.repo.mu.Unlock()
		if done == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	pool.Wait()

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	assert.Len(t, f.repo.delivered, 2)
	assert.Len(t, f.repo.attempts, 2, "the delivery with the lost lease is never attempted")
	for _, a := range f.repo.attempts {
		assert.NotEqual(t, lapsed.ID, a.DeliveryID)
	}

	hitsMu.Lock()
	defer hitsMu.Unlock()
	assert.EqualValues(t, 2, hits)
}

func TestWorkerPoolStopsOnContextCancel(t *testing.T) {
	f := newEngineFixture(t, "http://example.invalid", nil)
	repo := &claimOnceRepo{fakeRepo: f.repo}
	f.service.repo = repo

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(f.service, 2, 10*time.Millisecond, 2, time.Minute)
	pool.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not stop after context cancellation")
	}
}
