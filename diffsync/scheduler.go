package diffsync

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler triggers diff-sync cycles on startup, periodically against
// a random connected peer, and on demand (§4.5 "Diff sync is
// triggered..."). Concurrent diff syncs against multiple peers are
// permitted; Syncer itself only serializes at the CRDT merge boundary.
type Scheduler struct {
	logger   *logrus.Entry
	syncer   *Syncer
	selector PeerSelector
	interval time.Duration

	demand chan struct{}
	stop   chan struct{}

	// synced mirrors the AlreadyInSync flag of the most recently
	// completed cycle (or true before any cycle has run), for
	// Scheduler.IsSynced.
	synced atomic.Bool
}

// NewScheduler builds a scheduler that runs cycles against selector's
// peers every interval.
func NewScheduler(logger *logrus.Logger, syncer *Syncer, selector PeerSelector, interval time.Duration) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scheduler{
		logger:   logger.WithField("component", "diffsync-scheduler"),
		syncer:   syncer,
		selector: selector,
		interval: interval,
		demand:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	s.synced.Store(true)
	return s
}

// IsSynced reports whether the most recently completed diff-sync cycle
// found the local trie already matching its peer's root hash. A cycle
// that was skipped (no selectable peer, or the chosen peer was faulty)
// leaves the previous value unchanged; a cycle abandoned after its
// retry budget is exhausted reports false, since the trie's state
// relative to that peer is unknown.
func (s *Scheduler) IsSynced() bool {
	return s.synced.Load()
}

// TriggerNow requests an out-of-band diff-sync cycle (§4.5 "(iii) on
// demand"). Non-blocking: a cycle already pending coalesces with this
// one.
func (s *Scheduler) TriggerNow() {
	select {
	case s.demand <- struct{}{}:
	default:
	}
}

// Stop ends the scheduler's run loop.
func (s *Scheduler) Stop() {
	close(s.stop)
}

// Run blocks, running a startup cycle immediately (§4.5 "(i) on
// startup") and then periodic/on-demand cycles until Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCycle(ctx)

	ticker := time.NewTicker(jittered(s.interval))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
			ticker.Reset(jittered(s.interval))
		case <-s.demand:
			s.runCycle(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	peer, ok := s.selector.Next()
	if !ok {
		s.logger.Debug("diffsync: no selectable peer for this cycle")
		return
	}
	if s.syncer.IsFaulty(peer) {
		s.logger.WithField("peer", peer).Debug("diffsync: skipping faulty peer")
		return
	}

	s.selector.UpdateLast(peer)
	result, err := withRetry(ctx, s.logger, func() (Result, error) {
		return s.syncer.SyncWith(ctx, peer)
	})
	if err != nil {
		s.synced.Store(false)
		s.logger.WithFields(logrus.Fields{"peer": peer, "error": err}).
			Warn("diffsync: cycle abandoned after retry budget exhausted")
		return
	}
	s.synced.Store(result.AlreadyInSync)
	if result.AlreadyInSync {
		s.logger.WithField("peer", peer).Debug("diffsync: already in sync")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"peer":      peer,
		"imported":  result.Imported,
		"dropped":   result.Dropped,
		"divergent": result.DivergentAt,
	}).Info("diffsync: cycle complete")
}

// jittered adds up to 20% random jitter to interval, so periodic
// cycles against many peers do not thunder in lockstep.
func jittered(interval time.Duration) time.Duration {
	if interval <= 0 {
		return interval
	}
	jitter := time.Duration(rand.Int63n(int64(interval) / 5))
	return interval + jitter
}

// withRetry retries a bounded number of times with jittered backoff
// (§4.5 "Failure semantics": RPC failures are retried with jitter on a
// bounded budget, then abandoned).
func withRetry(ctx context.Context, logger *logrus.Entry, fn func() (Result, error)) (Result, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		logger.WithFields(logrus.Fields{"attempt": attempt + 1, "error": err}).
			Debug("diffsync: retrying after failure")

		select {
		case <-time.After(backoff + time.Duration(rand.Int63n(int64(backoff)))):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		backoff *= 2
	}
	return Result{}, lastErr
}
