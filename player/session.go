package player

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/volcap/uvol/fetch"
	"github.com/volcap/uvol/internal/abr"
	"github.com/volcap/uvol/internal/clock"
	"github.com/volcap/uvol/internal/metrics"
	"github.com/volcap/uvol/internal/sched"
	"github.com/volcap/uvol/internal/store"
	"github.com/volcap/uvol/internal/timeline"
	"github.com/volcap/uvol/manifest"
	"github.com/volcap/uvol/media"
)

// session is the mutable per-track state: resolved manifest handle, clock,
// per-stream target selections, frame stores, scheduler, and quality
// controller. Created once per PlayTrack, torn down when the track ends or
// is replaced. Nothing in a session is shared across concurrent sessions.
type session struct {
	log  *slog.Logger
	opts *Options
	met  *metrics.Metrics

	man      *manifest.Manifest
	clk      clock.Source
	hasAudio bool

	geoTarget string

	// mu guards the mutable texture target selections; the quality
	// controller shifts them from decode-batch completions while the
	// scheduler and presenter read them.
	mu       sync.Mutex
	textures map[media.TextureType]*textureState
	texOrder []media.TextureType

	geoStore *store.Store[media.GeometryKey, *media.GeometryFrame]
	texStore *store.Store[media.TextureKey, *media.TextureFrame]

	sch    *sched.Scheduler
	ctrl   *abr.Controller
	cancel context.CancelFunc

	closeOnce sync.Once
}

// textureState is the session's selection for one texture type: the
// capability-filtered priority order and the index of the active target.
type textureState struct {
	typ    media.TextureType
	stream manifest.TextureStream
	order  []string // priority order, lowest quality first
	idx    int      // active index into order
	tag    string
}

func (ts *textureState) active() (string, manifest.TextureTarget) {
	name := ts.order[ts.idx]
	return name, ts.stream.Targets[name]
}

// newSession resolves targets and builds the session, scheduler, and
// controller for a track. Texture types with no renderer-compatible target
// are excluded from scheduling entirely.
func (p *Player) newSession(man *manifest.Manifest, element MediaElement) (*session, error) {
	geoOrder := man.Geometry.GeometryPriority()
	if len(geoOrder) == 0 {
		return nil, manifest.ErrNoGeometry
	}

	sess := &session{
		log:       p.log,
		opts:      &p.opts,
		met:       p.met,
		man:       man,
		geoTarget: geoOrder[0],
		textures:  make(map[media.TextureType]*textureState),
		geoStore: store.New[media.GeometryKey, *media.GeometryFrame](
			func(k media.GeometryKey) int { return k.Frame }),
		texStore: store.New[media.TextureKey, *media.TextureFrame](
			func(k media.TextureKey) int { return k.Frame }),
	}

	for typ, stream := range man.Texture {
		order := stream.FilterTargets(p.opts.SupportedTextureFormats)
		if len(order) == 0 {
			p.log.Warn("no renderer-compatible target, excluding texture type",
				"type", string(typ))
			continue
		}
		sess.textures[typ] = &textureState{
			typ:    typ,
			stream: stream,
			order:  order,
			tag:    media.DefaultTag,
		}
		sess.texOrder = append(sess.texOrder, typ)
	}
	sort.Slice(sess.texOrder, func(i, j int) bool {
		return sess.texOrder[i] < sess.texOrder[j]
	})

	if element != nil && man.AudioSupported(p.opts.SupportedAudioFormats) {
		sess.clk = clock.NewMedia(element)
		sess.hasAudio = true
	} else {
		if element != nil && man.Audio != nil {
			p.log.Info("audio format unsupported, falling back to wall clock",
				"formats", man.Audio.Formats)
		}
		sess.clk = clock.NewWall(nil)
	}

	streams := []sched.Stream{&geometryStream{sess: sess}}
	for _, typ := range sess.texOrder {
		streams = append(streams, &textureStream{sess: sess, state: sess.textures[typ]})
	}

	sess.ctrl = abr.NewController(p.log)

	observeStream := ""
	if _, ok := sess.textures[media.TextureBaseColor]; ok {
		observeStream = streamName(media.TextureBaseColor)
	}
	sess.sch = sched.New(sched.Config{
		Clock:         sess.clk,
		Streams:       streams,
		BufferSeconds: int(p.opts.BufferDuration / time.Second),
		Interval:      p.opts.IntervalDuration,
		ObserveStream: observeStream,
		Observer:      sess,
		Metrics:       p.met,
		Logger:        p.log,
	})

	return sess, nil
}

// teardown stops the scheduler timer before releasing the frame stores, so a
// late-firing tick can never write into a disposed store. Idempotent.
func (s *session) teardown() {
	s.closeOnce.Do(func() {
		s.sch.Stop()
		if s.cancel != nil {
			s.cancel()
		}
		s.clk.Pause()
		s.geoStore.Close()
		s.texStore.Close()
	})
}

func (s *session) geometry() manifest.GeometryTarget {
	return s.man.Geometry.Targets[s.geoTarget]
}

// bufferFill is the geometry buffering pressure: decoded frames at or ahead
// of the playhead as a fraction of the full lookahead window.
func (s *session) bufferFill(current int, geo manifest.GeometryTarget, bufferDuration time.Duration) float64 {
	window := geo.FrameRate * bufferDuration.Seconds()
	if window <= 0 {
		return 0
	}
	buffered := s.geoStore.Count(func(k media.GeometryKey) bool {
		return k.Frame >= current
	})
	fill := float64(buffered) / window
	if fill > 1 {
		fill = 1
	}
	return fill
}

// evictConsumed drops frames the playhead has moved past, holding back one
// frame so the frame selected for presentation this tick is never evicted
// before it is read.
func (s *session) evictConsumed(now float64, currentGeometry int) {
	s.geoStore.EvictBefore(currentGeometry-1, nil)

	s.mu.Lock()
	states := make([]*textureState, 0, len(s.texOrder))
	for _, typ := range s.texOrder {
		states = append(states, s.textures[typ])
	}
	s.mu.Unlock()

	for _, ts := range states {
		// Mixed-target entries survive a quality switch, so evict per
		// target at that target's own frame numbering.
		for _, name := range ts.order {
			target := ts.stream.Targets[name]
			current := timeline.Clamp(
				timeline.FrameNumber(target.FrameRate, now), target.FrameCount)
			threshold := timeline.SegmentIndex(current-1, target.SegmentGrouping())
			typ, name := ts.typ, name
			s.texStore.EvictBefore(threshold, func(k media.TextureKey) bool {
				return k.Type == typ && k.Target == name
			})
		}
	}
}

// lookupTextures resolves, per scheduled texture type, the frame to present
// at time now. Order of preference: the active (type, tag, target); any
// other target under the default tag at its own mapped frame number; absent
// (nil entry), which tells the presenter to use its failure material.
// Partial visual continuity from a different quality tier beats a flat
// placeholder.
func (s *session) lookupTextures(now float64) map[media.TextureType]*media.TextureFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[media.TextureType]*media.TextureFrame, len(s.texOrder))
	for _, typ := range s.texOrder {
		ts := s.textures[typ]
		name, target := ts.active()
		if frame, ok := s.texLookup(typ, ts.tag, name, target, now); ok {
			out[typ] = frame
			continue
		}
		found := false
		for _, alt := range ts.order {
			if alt == name && ts.tag == media.DefaultTag {
				continue
			}
			if frame, ok := s.texLookup(typ, media.DefaultTag, alt, ts.stream.Targets[alt], now); ok {
				out[typ] = frame
				found = true
				break
			}
		}
		if !found {
			out[typ] = nil
		}
	}
	return out
}

func (s *session) texLookup(typ media.TextureType, tag, name string, target manifest.TextureTarget, now float64) (*media.TextureFrame, bool) {
	current := timeline.Clamp(timeline.FrameNumber(target.FrameRate, now), target.FrameCount)
	key := media.TextureKey{
		Type:   typ,
		Tag:    tag,
		Target: name,
		Frame:  timeline.SegmentIndex(current, target.SegmentGrouping()),
	}
	return s.texStore.Get(key)
}

// Observe implements sched.Observer: it feeds the quality controller and
// applies its decision to the base-color target selection. Only the
// base-color stream adapts; other texture types and geometry keep their
// targets for the whole session.
func (s *session) Observe(fetchSeconds, playSeconds float64) {
	s.ctrl.Observe(fetchSeconds, playSeconds)
	switch s.ctrl.Decide() {
	case abr.StepUp:
		s.shiftTexture(media.TextureBaseColor, +1)
	case abr.StepDown:
		s.shiftTexture(media.TextureBaseColor, -1)
	}
}

// shiftTexture moves a texture type's active target by one step along its
// priority order, clamped at the ends. Already-decoded frames for the old
// target stay in the store; the presenter's fallback search keeps them
// usable until evicted.
func (s *session) shiftTexture(typ media.TextureType, delta int) {
	s.mu.Lock()
	ts, ok := s.textures[typ]
	if !ok {
		s.mu.Unlock()
		return
	}
	next := ts.idx + delta
	if next < 0 || next > len(ts.order)-1 || next == ts.idx {
		s.mu.Unlock()
		return
	}
	from, to := ts.order[ts.idx], ts.order[next]
	ts.idx = next
	s.mu.Unlock()

	direction := "up"
	if delta < 0 {
		direction = "down"
	}
	s.met.IncQualitySwitches(direction)
	s.log.Info("quality switch",
		"type", string(typ), "from", from, "to", to, "direction", direction)
}

func streamName(typ media.TextureType) string {
	return "texture:" + string(typ)
}

// geometryStream adapts the session's geometry selection to the scheduler.
type geometryStream struct {
	sess *session
}

func (g *geometryStream) Name() string { return "geometry" }

func (g *geometryStream) FrameRate() float64 { return g.sess.geometry().FrameRate }

func (g *geometryStream) FrameCount() int { return g.sess.geometry().FrameCount }

func (g *geometryStream) FramesPerSegment() int { return 1 }

// Request decodes one geometry frame and lands it in the store. The store
// key is fixed at request-issue time.
func (g *geometryStream) Request(ctx context.Context, frame int) error {
	s := g.sess
	target := s.geometry()
	url := fetch.ResolveURL(s.opts.BaseURL, target.Path, fetch.Vars{
		Target:  s.geoTarget,
		Frame:   frame,
		Padding: target.Padding,
	})
	decoded, err := s.opts.GeometryDecoder.Decode(ctx, url)
	if err != nil {
		return fmt.Errorf("geometry frame %d: %w", frame, err)
	}
	s.geoStore.Put(media.GeometryKey{Target: s.geoTarget, Frame: frame}, decoded)
	return nil
}

// textureStream adapts one texture type's active selection to the scheduler.
// Rate, count, and grouping follow the active target, so a quality switch
// takes effect on the next scheduling pass.
type textureStream struct {
	sess  *session
	state *textureState
}

func (t *textureStream) Name() string { return streamName(t.state.typ) }

func (t *textureStream) FrameRate() float64 {
	_, target := t.snapshot()
	return target.FrameRate
}

func (t *textureStream) FrameCount() int {
	_, target := t.snapshot()
	return target.FrameCount
}

func (t *textureStream) FramesPerSegment() int {
	_, target := t.snapshot()
	return target.SegmentGrouping()
}

func (t *textureStream) snapshot() (string, manifest.TextureTarget) {
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	return t.state.active()
}

// Request decodes one texture fetch unit (frame, or segment when the target
// groups frames) under the target active at issue time.
func (t *textureStream) Request(ctx context.Context, unit int) error {
	s := t.sess
	s.mu.Lock()
	name, target := t.state.active()
	tag := t.state.tag
	s.mu.Unlock()

	url := fetch.ResolveURL(s.opts.BaseURL, target.Path, fetch.Vars{
		Target:  name,
		Tag:     tag,
		Frame:   unit,
		Segment: unit,
		Padding: target.Padding,
	})
	decoded, err := s.opts.TextureDecoder.Decode(ctx, url)
	if err != nil {
		return fmt.Errorf("texture %s unit %d: %w", t.state.typ, unit, err)
	}
	s.texStore.Put(media.TextureKey{
		Type:   t.state.typ,
		Tag:    tag,
		Target: name,
		Frame:  unit,
	}, decoded)
	return nil
}
