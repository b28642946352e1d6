package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/shardlight/kvbridge/engine"
	"github.com/shardlight/kvbridge/shim"
)

// runBench drives a concurrent create/use/destroy workload through the
// Go-level shim surface and verifies nothing leaks: every handle the
// workload creates must be destroyed by the time it finishes.
func runBench(s *shim.Shim, logger *zap.Logger, workers, ops int) error {
	dbh, err := s.DBOpen(engine.Options{InMemory: true})
	if err != nil {
		return fmt.Errorf("open bench db: %w", err)
	}

	// Generous budget so throttling shapes the workload without
	// dominating the run time.
	lh, err := s.RateLimiterCreate(64<<20, 100000, 10)
	if err != nil {
		s.DBDestroy(dbh)
		return fmt.Errorf("create bench limiter: %w", err)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		s.RateLimiterDestroy(lh)
		s.DBDestroy(dbh)
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)

	start := time.Now()
	for i := 0; i < ops; i++ {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()

			key := []byte(fmt.Sprintf("bench/%d", i))
			value := []byte(fmt.Sprintf("value-%d", i))

			_ = s.RateLimiterRequest(lh, int64(len(key)+len(value)))

			if err := s.DBPut(dbh, key, value); err != nil {
				failures.Add(1)
				return
			}
			if _, err := s.DBGet(dbh, key); err != nil {
				failures.Add(1)
				return
			}

			switch {
			case i%50 == 0:
				ith, err := s.IteratorCreate(dbh, []byte("bench/"), false)
				if err != nil {
					failures.Add(1)
					return
				}
				for n := 0; n < 10 && s.IteratorValid(ith); n++ {
					_ = s.IteratorNext(ith)
				}
				s.IteratorDestroy(ith)
			case i%25 == 0:
				wbh, err := s.WriteBatchCreate(dbh)
				if err != nil {
					failures.Add(1)
					return
				}
				for n := 0; n < 8; n++ {
					_ = s.WriteBatchPut(wbh, []byte(fmt.Sprintf("bench/batch/%d/%d", i, n)), value)
				}
				if err := s.WriteBatchFlush(wbh); err != nil {
					failures.Add(1)
				}
				s.WriteBatchDestroy(wbh)
			case i%10 == 0:
				sh, err := s.SnapshotCreate(dbh)
				if err != nil {
					failures.Add(1)
					return
				}
				_, _ = s.SnapshotGet(sh, key)
				s.SnapshotDestroy(sh)
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			failures.Add(1)
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	s.RateLimiterDestroy(lh)
	s.DBDestroy(dbh)

	leaked := s.Live()
	logger.Info("bench finished",
		zap.Int("ops", ops),
		zap.Int("workers", workers),
		zap.Duration("elapsed", elapsed),
		zap.Int64("failures", failures.Load()),
		zap.Int("leaked_handles", leaked))

	if leaked != 0 {
		return fmt.Errorf("workload leaked %d handles", leaked)
	}
	if n := failures.Load(); n != 0 {
		return fmt.Errorf("workload had %d failed operations", n)
	}
	return nil
}
