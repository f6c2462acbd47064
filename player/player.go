// Package player is the public facade of the UVOL playback engine. A Player
// owns the decoded frame stores, the prefetch scheduler, and the adaptive
// quality controller for one track at a time; the host render loop drives
// presentation by calling Update every frame.
package player

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/volcap/uvol/fetch"
	"github.com/volcap/uvol/internal/metrics"
	"github.com/volcap/uvol/internal/timeline"
	"github.com/volcap/uvol/manifest"
	"github.com/volcap/uvol/media"
)

// Defaults for the scheduling configuration surface.
const (
	DefaultBufferDuration   = 4 * time.Second
	DefaultIntervalDuration = 2 * time.Second
)

// Errors returned by PlayTrack.
var (
	ErrNoDecoder = errors.New("player: geometry and texture decoders are required")
)

// MediaElement is the optional external audio/video element that drives the
// presentation clock when its audio format is supported. The element stays
// owned by the caller.
type MediaElement interface {
	CurrentTime() float64
	Paused() bool
	Ended() bool
	Play()
	Pause()
}

// Presenter consumes the decoded frames selected for the current playhead
// position. A missing texture entry (nil value or absent key) means the
// presenter should show its designated failure material for that channel.
// The presenter must not retain frames across calls; the player disposes
// them once evicted.
type Presenter interface {
	Present(geometry *media.GeometryFrame, textures map[media.TextureType]*media.TextureFrame)
}

// Options configures a Player.
type Options struct {
	// BufferDuration is the desired lookahead in seconds (leaky bucket
	// capacity). Defaults to 4s.
	BufferDuration time.Duration
	// IntervalDuration is the scheduler tick period. Defaults to 2s.
	IntervalDuration time.Duration
	// BaseURL prefixes relative manifest asset paths.
	BaseURL string

	GeometryDecoder fetch.GeometryDecoder
	TextureDecoder  fetch.TextureDecoder

	// SupportedTextureFormats filters texture targets to what the renderer
	// can consume; empty accepts everything. Types with no compatible
	// target are excluded from scheduling at track start.
	SupportedTextureFormats []string
	// SupportedAudioFormats filters the audio clock; an unsupported audio
	// track silently falls back to the wall clock.
	SupportedAudioFormats []string

	// OnBuffering fires on presentation ticks where playback is waiting
	// for data, with the geometry buffer fill fraction in [0, 1].
	OnBuffering func(fraction float64)
	// OnTrackEnd fires once when the track reaches its final frame or the
	// audio element reports ended.
	OnTrackEnd func()

	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// EnableMetrics registers Prometheus collectors, served by
	// MetricsHandler.
	EnableMetrics bool
}

// Player streams one UVOL track at a time to a Presenter.
type Player struct {
	log  *slog.Logger
	opts Options
	met  *metrics.Metrics

	mu   sync.Mutex
	sess *session
}

// New creates a Player. Zero option fields take defaults.
func New(opts Options) *Player {
	if opts.BufferDuration <= 0 {
		opts.BufferDuration = DefaultBufferDuration
	}
	if opts.IntervalDuration <= 0 {
		opts.IntervalDuration = DefaultIntervalDuration
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	var met *metrics.Metrics
	if opts.EnableMetrics {
		met = metrics.New()
	}
	return &Player{
		log:  log.With("component", "player"),
		opts: opts,
		met:  met,
	}
}

// MetricsHandler serves the player's Prometheus registry. Without
// EnableMetrics it serves 404.
func (p *Player) MetricsHandler() http.Handler {
	return p.met.Handler()
}

// PlayTrack starts playback of a track, replacing any current session. The
// element may be nil; with a supported audio track it becomes the
// presentation clock, otherwise a wall clock drives playback. PlayTrack
// blocks until the first scheduling pass's decode requests settle, then
// starts the clock and the scheduler loop.
func (p *Player) PlayTrack(ctx context.Context, man *manifest.Manifest, element MediaElement) error {
	if p.opts.GeometryDecoder == nil || p.opts.TextureDecoder == nil {
		return ErrNoDecoder
	}
	p.Stop()

	sess, err := p.newSession(man, element)
	if err != nil {
		return err
	}

	// Gate playback start on the first pass: every stream's initial window
	// must have settled (decoded or failed) before the clock starts.
	if err := sess.sch.InitialPass(ctx); err != nil {
		sess.teardown()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess.cancel = cancel
	sess.clk.Play()
	sess.sch.Start(runCtx)

	p.mu.Lock()
	p.sess = sess
	p.mu.Unlock()

	p.log.Info("track started",
		"name", man.Name,
		"geometry_target", sess.geoTarget,
		"texture_types", len(sess.textures),
		"audio_clock", sess.hasAudio,
	)
	return nil
}

// Pause freezes the presentation clock. The scheduler keeps ticking but the
// full bucket keeps it idle until playback resumes.
func (p *Player) Pause() {
	if sess := p.current(); sess != nil {
		sess.clk.Pause()
	}
}

// Resume unfreezes the presentation clock.
func (p *Player) Resume() {
	if sess := p.current(); sess != nil {
		sess.clk.Play()
	}
}

// Paused reports whether the presentation clock is frozen. True with no
// active session.
func (p *Player) Paused() bool {
	if sess := p.current(); sess != nil {
		return sess.clk.Paused()
	}
	return true
}

// Stop tears down the current session, if any: the scheduler timer is
// cancelled first, then the frame stores are disposed. Idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	p.mu.Unlock()

	if sess != nil {
		sess.teardown()
	}
}

// Update is the presentation tick, called by the host render loop. It
// resolves the frames for the current playhead, evicts consumed frames, and
// hands the result to the presenter. When the geometry frame for the current
// position has not decoded yet the tick is skipped entirely so the presenter
// holds its last displayed state.
func (p *Player) Update(presenter Presenter) {
	sess := p.current()
	if sess == nil {
		return
	}
	if sess.clk.Ended() {
		p.endTrack(sess)
		return
	}

	now := sess.clk.CurrentTime()
	geo := sess.geometry()
	current := timeline.Clamp(timeline.FrameNumber(geo.FrameRate, now), geo.FrameCount)

	if current >= timeline.LastFrame(geo.FrameCount) {
		p.endTrack(sess)
		return
	}

	sess.evictConsumed(now, current)

	frame, ok := sess.geoStore.Get(media.GeometryKey{Target: sess.geoTarget, Frame: current})
	fill := sess.bufferFill(current, geo, p.opts.BufferDuration)
	p.met.SetBufferLevel(fill)
	if !ok {
		if p.opts.OnBuffering != nil {
			p.opts.OnBuffering(fill)
		}
		return
	}

	presenter.Present(frame, sess.lookupTextures(now))
}

// current returns the active session, or nil.
func (p *Player) current() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess
}

// endTrack transitions a finished session to stopped and fires OnTrackEnd.
// End of track is a normal terminal state, not an error.
func (p *Player) endTrack(sess *session) {
	p.mu.Lock()
	if p.sess == sess {
		p.sess = nil
	}
	p.mu.Unlock()

	sess.teardown()
	p.log.Info("track ended")
	if p.opts.OnTrackEnd != nil {
		p.opts.OnTrackEnd()
	}
}
