package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a hand-advanced presentation clock.
type fakeClock struct {
	mu sync.Mutex
	t  float64
}

func (c *fakeClock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}
func (c *fakeClock) Paused() bool { return false }
func (c *fakeClock) Ended() bool  { return false }
func (c *fakeClock) Play()        {}
func (c *fakeClock) Pause()       {}

func (c *fakeClock) set(t float64) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// fakeStream records every requested unit.
type fakeStream struct {
	name  string
	rate  float64
	count int
	group int
	err   error

	mu       sync.Mutex
	requests []int
}

func (f *fakeStream) Name() string          { return f.name }
func (f *fakeStream) FrameRate() float64    { return f.rate }
func (f *fakeStream) FrameCount() int       { return f.count }
func (f *fakeStream) FramesPerSegment() int { return f.group }

func (f *fakeStream) Request(ctx context.Context, unit int) error {
	f.mu.Lock()
	f.requests = append(f.requests, unit)
	f.mu.Unlock()
	return f.err
}

func (f *fakeStream) requested() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.requests))
	copy(out, f.requests)
	return out
}

type recordedSample struct {
	fetch float64
	play  float64
}

type fakeObserver struct {
	mu      sync.Mutex
	samples []recordedSample
}

func (o *fakeObserver) Observe(fetchSeconds, playSeconds float64) {
	o.mu.Lock()
	o.samples = append(o.samples, recordedSample{fetchSeconds, playSeconds})
	o.mu.Unlock()
}

func newScheduler(clk *fakeClock, streams ...Stream) *Scheduler {
	return New(Config{
		Clock:         clk,
		Streams:       streams,
		BufferSeconds: 4,
		Interval:      50 * time.Millisecond,
	})
}

func TestInitialWindow(t *testing.T) {
	t.Parallel()

	// Geometry at 30fps, 300 frames, 4s lookahead: the first pass must
	// request frames 0..119 and no more.
	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 300}
	s := newScheduler(clk, geo)

	s.Tick(context.Background())

	got := geo.requested()
	require.Len(t, got, 120)
	seen := make(map[int]bool)
	for _, f := range got {
		assert.GreaterOrEqual(t, f, 0)
		assert.LessOrEqual(t, f, 119)
		assert.False(t, seen[f], "frame %d requested twice", f)
		seen[f] = true
	}
	assert.Equal(t, 119, s.Cursor("geometry"))
}

func TestNoDuplicateAcrossTicks(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 300}
	s := newScheduler(clk, geo)
	ctx := context.Background()

	s.Tick(ctx)
	s.Tick(ctx) // playhead unchanged, bucket full: no new requests
	require.Len(t, geo.requested(), 120)

	clk.set(2)
	s.Tick(ctx)

	got := geo.requested()
	seen := make(map[int]int)
	for _, f := range got {
		seen[f]++
		assert.Equal(t, 1, seen[f], "frame %d requested more than once", f)
	}
	// current=60, horizon 60+120-1=179.
	assert.Equal(t, 179, s.Cursor("geometry"))
}

func TestLeakyBucketBound(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 3000}
	s := newScheduler(clk, geo)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		clk.set(float64(i) * 0.7)
		s.Tick(ctx)
		current := int(clk.CurrentTime() * 30)
		assert.LessOrEqual(t, s.Cursor("geometry")-current, 4*30,
			"lookahead exceeded bucket capacity at t=%v", clk.CurrentTime())
	}
}

func TestCursorMonotonicAndCapped(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 150}
	s := newScheduler(clk, geo)
	ctx := context.Background()

	prev := -1
	for i := 0; i < 12; i++ {
		clk.set(float64(i))
		s.Tick(ctx)
		cur := s.Cursor("geometry")
		assert.GreaterOrEqual(t, cur, prev, "cursor went backwards")
		assert.LessOrEqual(t, cur, 149, "cursor exceeded last frame")
		prev = cur
	}
	assert.Equal(t, 149, prev)
}

func TestEndOfStreamStopsRequests(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 60}
	s := newScheduler(clk, geo)
	ctx := context.Background()

	s.Tick(ctx)
	require.Equal(t, 59, s.Cursor("geometry"))
	issued := len(geo.requested())

	clk.set(1)
	s.Tick(ctx)
	clk.set(2)
	s.Tick(ctx)
	assert.Len(t, geo.requested(), issued, "no requests may fire after end of stream")
}

func TestIndependentStreamRates(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 300}
	tex := &fakeStream{name: "texture:baseColor", rate: 15, count: 150}
	s := newScheduler(clk, geo, tex)

	s.Tick(context.Background())

	assert.Equal(t, 119, s.Cursor("geometry"))
	assert.Equal(t, 59, s.Cursor("texture:baseColor"))
	assert.Len(t, tex.requested(), 60)
}

func TestSegmentGrouping(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	tex := &fakeStream{name: "texture:baseColor", rate: 10, count: 100, group: 5}
	s := New(Config{
		Clock:         clk,
		Streams:       []Stream{tex},
		BufferSeconds: 1,
		Interval:      50 * time.Millisecond,
	})
	ctx := context.Background()

	// Frames 0..9 collapse to segments 0 and 1.
	s.Tick(ctx)
	assert.Equal(t, []int{0, 1}, tex.requested())
	assert.Equal(t, 9, s.Cursor("texture:baseColor"))

	// Frames 10..14 are exactly segment 2; segment 1 is not re-requested.
	clk.set(0.5)
	s.Tick(ctx)
	assert.Equal(t, []int{0, 1, 2}, tex.requested())
}

func TestObserverFedForObservedStreamOnly(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 300}
	tex := &fakeStream{name: "texture:baseColor", rate: 15, count: 150}
	obs := &fakeObserver{}
	s := New(Config{
		Clock:         clk,
		Streams:       []Stream{geo, tex},
		BufferSeconds: 4,
		Interval:      50 * time.Millisecond,
		ObserveStream: "texture:baseColor",
		Observer:      obs,
	})

	s.Tick(context.Background())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.samples, 1, "exactly one sample per observed batch")
	assert.InDelta(t, 4.0, obs.samples[0].play, 1e-9, "60 frames at 15fps is 4s gained")
}

func TestRequestFailureStillAdvancesCursor(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 300, err: errors.New("boom")}
	s := newScheduler(clk, geo)

	s.Tick(context.Background())

	// Failures leave frames absent; they are never re-requested.
	assert.Equal(t, 119, s.Cursor("geometry"))
	assert.Len(t, geo.requested(), 120)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	geo := &fakeStream{name: "geometry", rate: 30, count: 300}
	s := New(Config{
		Clock:         clk,
		Streams:       []Stream{geo},
		BufferSeconds: 4,
		Interval:      5 * time.Millisecond,
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(geo.requested()) == 120
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop() // idempotent

	issued := len(geo.requested())
	clk.set(2)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, geo.requested(), issued, "no ticks may fire after Stop")
}

func TestInitialPassAwaitsDecodes(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	done := make(chan struct{})
	slow := &slowStream{
		fakeStream: fakeStream{name: "geometry", rate: 1, count: 10},
		release:    done,
	}
	s := New(Config{
		Clock:         clk,
		Streams:       []Stream{slow},
		BufferSeconds: 1,
		Interval:      50 * time.Millisecond,
	})

	finished := make(chan struct{})
	go func() {
		s.InitialPass(context.Background())
		close(finished)
	}()

	select {
	case <-finished:
		t.Fatal("InitialPass returned before decodes settled")
	case <-time.After(20 * time.Millisecond):
	}
	close(done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("InitialPass did not return after decodes settled")
	}
}

// slowStream blocks every request until release is closed.
type slowStream struct {
	fakeStream
	release chan struct{}
}

func (s *slowStream) Request(ctx context.Context, unit int) error {
	<-s.release
	return s.fakeStream.Request(ctx, unit)
}
