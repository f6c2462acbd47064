// Package clock provides the presentation clock for a playback session.
// A track is driven either by an external audio/video element's native
// position or, when no usable audio exists, by a wall clock with pause
// accounting. The choice is made once at track start.
package clock

import "time"

// Source yields the current presentation time for a track. CurrentTime is
// monotonic while playing and frozen while paused. Callers must not read
// CurrentTime before the first Play.
type Source interface {
	CurrentTime() float64
	Paused() bool
	Ended() bool
	Play()
	Pause()
}

// Element is the subset of an external audio/video element the media clock
// delegates to. The element is owned by the caller; the player never closes
// or seeks it.
type Element interface {
	CurrentTime() float64
	Paused() bool
	Ended() bool
	Play()
	Pause()
}

// Media is a Source backed by an external element's native play position.
type Media struct {
	el Element
}

// NewMedia wraps an element as a presentation clock.
func NewMedia(el Element) *Media {
	return &Media{el: el}
}

// CurrentTime returns the element's native position in seconds.
func (m *Media) CurrentTime() float64 { return m.el.CurrentTime() }

// Paused mirrors the element's paused state.
func (m *Media) Paused() bool { return m.el.Paused() }

// Ended mirrors the element's ended flag.
func (m *Media) Ended() bool { return m.el.Ended() }

// Play delegates to the element.
func (m *Media) Play() { m.el.Play() }

// Pause delegates to the element.
func (m *Media) Pause() { m.el.Pause() }

// Wall is a Source driven by the process clock. Pausing freezes the reported
// time by accumulating the paused interval and subtracting it on every read.
type Wall struct {
	now func() time.Time

	started     bool
	paused      bool
	start       time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
}

// NewWall creates a wall clock. now may be nil, in which case time.Now is
// used; tests inject a fake.
func NewWall(now func() time.Time) *Wall {
	if now == nil {
		now = time.Now
	}
	return &Wall{now: now}
}

// Play starts the clock on first call and resumes it on later calls, folding
// the elapsed pause interval into the cumulative paused duration.
func (w *Wall) Play() {
	if !w.started {
		w.started = true
		w.start = w.now()
		return
	}
	if w.paused {
		w.pausedTotal += w.now().Sub(w.pausedAt)
		w.paused = false
	}
}

// Pause freezes the clock. Pausing an already paused or never-started clock
// is a no-op.
func (w *Wall) Pause() {
	if !w.started || w.paused {
		return
	}
	w.paused = true
	w.pausedAt = w.now()
}

// Paused reports whether the clock is currently frozen.
func (w *Wall) Paused() bool { return !w.started || w.paused }

// Ended always reports false; end of track is detected by the geometry
// playhead reaching the last frame, not by the clock.
func (w *Wall) Ended() bool { return false }

// CurrentTime returns elapsed presentation seconds since the first Play,
// excluding paused intervals. Never negative; zero before the first Play.
func (w *Wall) CurrentTime() float64 {
	if !w.started {
		return 0
	}
	ref := w.now()
	if w.paused {
		ref = w.pausedAt
	}
	elapsed := ref.Sub(w.start) - w.pausedTotal
	if elapsed < 0 {
		return 0
	}
	return elapsed.Seconds()
}
