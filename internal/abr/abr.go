// Package abr implements the adaptive quality controller. It watches the
// ratio of fetch time to playback time gained for the primary texture stream
// and decides, one step at a time, whether the active quality target should
// move up or down its priority list.
package abr

import (
	"log/slog"
	"sync"
)

// Tunable decision constants. A ratio is fetch seconds spent per playback
// second gained, so 1.0 means fetching exactly keeps pace with playback.
const (
	// PromoteBelow: mean ratio at or under this means fetching runs
	// comfortably ahead of real time.
	PromoteBelow = 0.3
	// DemoteAbove: mean ratio over this means fetching is falling behind.
	DemoteAbove = 0.6
	// MinSamples is the window size required before a decision is made.
	MinSamples = 3
)

// Decision is the controller's verdict for one window.
type Decision int

// Possible decisions. The active target index moves by exactly one step per
// decision; consecutive bad windows are required to move further.
const (
	Hold Decision = iota
	StepUp
	StepDown
)

// String returns the decision name for logs.
func (d Decision) String() string {
	switch d {
	case StepUp:
		return "step-up"
	case StepDown:
		return "step-down"
	default:
		return "hold"
	}
}

// Controller accumulates fetch/playback ratio samples in a rolling window.
// Safe for concurrent use; samples arrive from decode-batch completions
// while decisions are read on the scheduler tick.
type Controller struct {
	log *slog.Logger

	mu      sync.Mutex
	samples []float64
}

// NewController creates a Controller. If log is nil, slog.Default() is used.
func NewController(log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{log: log.With("component", "abr")}
}

// Observe records one sample: fetchSeconds of wall time spent fetching a
// batch that gained playSeconds of playback. Batches that gained nothing are
// ignored rather than producing an infinite ratio.
func (c *Controller) Observe(fetchSeconds, playSeconds float64) {
	if playSeconds <= 0 {
		return
	}
	ratio := fetchSeconds / playSeconds
	c.mu.Lock()
	c.samples = append(c.samples, ratio)
	c.mu.Unlock()
	c.log.Debug("abr sample", "ratio", ratio, "fetch_s", fetchSeconds, "play_s", playSeconds)
}

// SampleCount returns the number of samples currently in the window.
func (c *Controller) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Decide computes the window mean and returns the resulting decision,
// resetting the window. With fewer than MinSamples samples it holds and
// keeps the window intact.
func (c *Controller) Decide() Decision {
	c.mu.Lock()
	if len(c.samples) < MinSamples {
		c.mu.Unlock()
		return Hold
	}
	var sum float64
	for _, s := range c.samples {
		sum += s
	}
	mean := sum / float64(len(c.samples))
	n := len(c.samples)
	c.samples = c.samples[:0]
	c.mu.Unlock()

	var d Decision
	switch {
	case mean <= PromoteBelow:
		d = StepUp
	case mean > DemoteAbove:
		d = StepDown
	default:
		d = Hold
	}
	c.log.Debug("abr decision", "mean", mean, "samples", n, "decision", d.String())
	return d
}
