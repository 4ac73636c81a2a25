package source

import (
	"context"
	"sync"
	"time"

	"github.com/driftwatch/driftwatch/pkg/stream"
	"go.uber.org/zap"
)

// StreamEmitter produces one sample for a stream. The scheduler invokes it
// once per enabled stream per round.
type StreamEmitter func(ctx context.Context, info stream.StreamInfo)

// Scheduler drives sampling: every interval it loads the enabled streams
// and fans them out to a bounded pool of emitter goroutines.
type Scheduler struct {
	store    *SourceStore
	emitter  StreamEmitter
	interval time.Duration
	workers  int
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler wires a scheduler to the stream store and emitter. Nothing
// runs until Start.
func NewScheduler(store *SourceStore, emitter StreamEmitter, interval time.Duration, workers int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		emitter:  emitter,
		interval: interval,
		workers:  workers,
		logger:   logger,
	}
}

// Start launches the sampling loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the loop and blocks until in-flight emitters have drained.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Running reports whether the sampling loop is live.
func (s *Scheduler) Running() bool {
	return s.ctx != nil && s.ctx.Err() == nil
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// The first round fires immediately so a fresh instance produces data
	// without waiting out a full interval.
	s.round()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.round()
		}
	}
}

// round runs one sampling pass. The whole pass shares a deadline of one
// interval, and round returns only after every emitter it started has
// finished, so passes never overlap and per-stream sample order holds
// across them.
func (s *Scheduler) round() {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.interval)
	defer cancel()

	streams, err := s.store.ListEnabled(ctx)
	if err != nil {
		s.logger.Warn("stream listing failed, skipping round", zap.Error(err))
		return
	}
	if len(streams) == 0 {
		return
	}
	s.fanOut(ctx, streams)
}

// fanOut hands streams to a pool of at most s.workers goroutines and waits
// for them all. Cancellation is checked between hand-offs, so shutdown does
// not wait out a long backlog.
func (s *Scheduler) fanOut(ctx context.Context, streams []stream.StreamInfo) {
	n := min(s.workers, len(streams))
	if n < 1 {
		n = 1
	}

	jobs := make(chan stream.StreamInfo)
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			for job := range jobs {
				s.emitter(ctx, job)
			}
		}()
	}

	offer := func(job stream.StreamInfo) bool {
		select {
		case <-s.ctx.Done():
			return false
		case jobs <- job:
			return true
		}
	}
	for i := range streams {
		if !offer(streams[i]) {
			break
		}
	}
	close(jobs)
	wg.Wait()
}
