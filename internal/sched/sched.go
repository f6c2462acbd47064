// Package sched implements the prefetch scheduler: a leaky-bucket control
// loop that, on every tick, measures how far ahead of the playhead each
// stream is buffered and issues exactly enough decode requests to fill the
// lookahead window, never more.
//
// The bucket for a stream is the gap between its high-water mark (last
// requested frame) and the current playhead frame. Requests fire only while
// that gap is below the configured lookahead; once full, nothing is issued
// until playback advances and the gap reopens. Geometry and each texture
// type carry independent cursors at independent frame rates, so their
// buffered horizons legitimately drift apart.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/volcap/uvol/internal/clock"
	"github.com/volcap/uvol/internal/metrics"
	"github.com/volcap/uvol/internal/timeline"
)

// Stream is one independently rate-controlled prefetch stream: the geometry
// stream or one texture type. Rate, count, and grouping are consulted every
// tick so a quality-target switch takes effect on the next pass without
// scheduler involvement.
type Stream interface {
	Name() string
	FrameRate() float64
	FrameCount() int
	// FramesPerSegment returns the fetch-unit grouping; values above 1 make
	// the scheduler request segment indices instead of raw frame numbers.
	FramesPerSegment() int
	// Request decodes one fetch unit (frame or segment index). Errors are
	// logged and swallowed by the scheduler: a failed decode just leaves
	// its frame absent.
	Request(ctx context.Context, unit int) error
}

// Observer receives one sample per completed decode batch of the observed
// stream: the wall seconds the batch took and the playback seconds it
// bought. The adaptive quality controller implements this.
type Observer interface {
	Observe(fetchSeconds, playSeconds float64)
}

// Config assembles a Scheduler.
type Config struct {
	Clock clock.Source
	// Streams to drive. Order is not significant.
	Streams []Stream
	// BufferSeconds is the desired lookahead window (leaky bucket
	// capacity) in whole seconds.
	BufferSeconds int
	// Interval between scheduling ticks.
	Interval time.Duration
	// ObserveStream names the stream whose batch timings feed Observer;
	// empty disables observation.
	ObserveStream string
	Observer      Observer
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Scheduler drives the prefetch loop for one track session. It owns its
// periodic timer; Stop cancels the timer deterministically before the
// session's stores are released.
type Scheduler struct {
	log      *slog.Logger
	clock    clock.Source
	streams  []Stream
	buffer   int
	interval time.Duration
	obsName  string
	observer Observer
	met      *metrics.Metrics

	mu      sync.Mutex
	cursors []int

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a Scheduler with every stream's high-water mark at -1.
func New(cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	cursors := make([]int, len(cfg.Streams))
	for i := range cursors {
		cursors[i] = -1
	}
	return &Scheduler{
		log:      log.With("component", "scheduler"),
		clock:    cfg.Clock,
		streams:  cfg.Streams,
		buffer:   cfg.BufferSeconds,
		interval: cfg.Interval,
		obsName:  cfg.ObserveStream,
		observer: cfg.Observer,
		met:      cfg.Metrics,
		cursors:  cursors,
		done:     make(chan struct{}),
	}
}

// InitialPass runs one scheduling tick and waits for every issued decode to
// settle, so the caller can defer starting playback until the first window
// is buffered. This is the only point where the scheduler awaits decodes;
// all later ticks are fire-and-forget. The priming batch does not feed the
// observer: quality adaptation reacts to steady-state ticks only.
func (s *Scheduler) InitialPass(ctx context.Context) error {
	s.tick(ctx, true, false)
	return ctx.Err()
}

// Start launches the periodic tick loop. It returns immediately; the loop
// runs until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, false, true)
			}
		}
	}()
}

// Stop cancels the tick loop and waits for it to exit. Decodes already in
// flight keep running on the caller's context; their results land in a store
// that tolerates post-teardown writes. Stop is idempotent.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		<-s.done
	}
}

// Cursor returns the high-water mark for the named stream, or -2 when the
// stream is unknown.
func (s *Scheduler) Cursor(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range s.streams {
		if st.Name() == name {
			return s.cursors[i]
		}
	}
	return -2
}

// Tick runs a single scheduling pass synchronously, awaiting issued decodes.
// Exposed for tests; production passes come from the Start loop.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tick(ctx, true, true)
}

// tick computes the playhead, then advances every stream's bucket. When
// await is set the pass blocks until all issued decodes settle; when observe
// is set, batch timings for the observed stream feed the Observer.
func (s *Scheduler) tick(ctx context.Context, await, observe bool) {
	now := s.clock.CurrentTime()

	for idx, st := range s.streams {
		rate := st.FrameRate()
		count := st.FrameCount()
		if rate <= 0 || count <= 0 {
			continue
		}
		last := timeline.LastFrame(count)
		current := timeline.Clamp(timeline.FrameNumber(rate, now), count)

		// Advance the high-water mark synchronously at request-issue time.
		// Re-entrant ticks can never double-request a frame even while
		// earlier decodes are still pending.
		s.mu.Lock()
		first := s.cursors[idx]
		for i := 0; i < s.buffer; i++ {
			// The horizon for lookahead step i covers i+1 seconds of
			// playback past the current frame, inclusive of the current
			// frame itself.
			end := current + int(float64(i+1)*rate) - 1
			if end > last {
				end = last
			}
			if s.cursors[idx] == last || s.cursors[idx] >= end {
				// Horizon did not advance for this step: no request,
				// no cursor mutation.
				continue
			}
			s.cursors[idx] = end
		}
		end := s.cursors[idx]
		s.mu.Unlock()

		if end <= first {
			continue
		}
		s.dispatch(ctx, st, first, end, await, observe)
	}
}

// dispatch issues decode requests for frames (first, end] of st, collapsing
// frame numbers into segment indices when the stream batches frames. All
// requests run concurrently; failures are logged and converted to
// "stay absent" without aborting siblings.
func (s *Scheduler) dispatch(ctx context.Context, st Stream, first, end int, await, observe bool) {
	group := st.FramesPerSegment()

	var units []int
	if group <= 1 {
		for f := first + 1; f <= end; f++ {
			units = append(units, f)
		}
	} else {
		startSeg := timeline.SegmentIndex(first+1, group)
		if first >= 0 && timeline.SegmentIndex(first, group) == startSeg {
			// The segment covering the previous high-water mark was
			// already requested by an earlier batch.
			startSeg++
		}
		for seg := startSeg; seg <= timeline.SegmentIndex(end, group); seg++ {
			units = append(units, seg)
		}
	}
	if len(units) == 0 {
		return
	}

	name := st.Name()
	framesGained := end - first
	rate := st.FrameRate()
	s.met.IncFramesRequested(name, framesGained)
	s.log.Debug("requesting frames",
		"stream", name, "from", first+1, "to", end, "units", len(units))

	var g errgroup.Group
	start := time.Now()
	for _, unit := range units {
		unit := unit
		g.Go(func() error {
			if err := st.Request(ctx, unit); err != nil {
				s.log.Warn("decode failed", "stream", name, "unit", unit, "error", err)
				s.met.IncDecodeFailures(name)
				return nil
			}
			s.met.IncFramesDecoded(name)
			return nil
		})
	}

	settle := func() {
		g.Wait()
		elapsed := time.Since(start).Seconds()
		s.met.ObserveFetchDuration(elapsed)
		if observe && s.observer != nil && name == s.obsName {
			s.observer.Observe(elapsed, float64(framesGained)/rate)
		}
	}
	if await {
		settle()
	} else {
		go settle()
	}
}
