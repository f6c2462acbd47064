// Package manifest parses and indexes UVOL track manifests: the immutable
// description of a track's geometry and texture streams, their quality
// targets, and the asset path templates used to fetch encoded frames.
//
// A manifest is pure data. All lookups are cheap recomputations over the
// parsed document; nothing here caches derived values or mutates state after
// Parse returns.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/volcap/uvol/media"
)

// Geometry encoding formats.
const (
	GeometryFormatCorto = "CORTO"
	GeometryFormatDraco = "DRACO"
)

// Texture encoding formats, ordered here from least to most capable.
const (
	TextureFormatKTX2   = "KTX2"
	TextureFormatASTC   = "ASTC"
	TextureFormatBasisU = "BASISU"
)

// Manifest is the parsed track manifest. It is immutable after Parse.
type Manifest struct {
	Version  int                                 `json:"version"`
	Name     string                              `json:"name,omitempty"`
	Duration float64                             `json:"duration"`
	Audio    *AudioTrack                         `json:"audio,omitempty"`
	Geometry GeometryStream                      `json:"geometry"`
	Texture  map[media.TextureType]TextureStream `json:"texture"`
}

// AudioTrack describes the optional audio track accompanying the volumetric
// streams. Formats lists the encodings the asset is available in.
type AudioTrack struct {
	Path    string   `json:"path"`
	Formats []string `json:"formats"`
}

// GeometryStream holds the quality targets available for the geometry stream.
type GeometryStream struct {
	Targets map[string]GeometryTarget `json:"targets"`
}

// GeometryTarget is one quality tier of the geometry stream.
type GeometryTarget struct {
	FrameRate  float64          `json:"frameRate"`
	FrameCount int              `json:"frameCount"`
	Format     string           `json:"format"`
	Path       string           `json:"path"`
	// Padding is the zero-padded width of frame numbers in asset names.
	Padding  int              `json:"padding,omitempty"`
	Settings GeometrySettings `json:"settings,omitempty"`
}

// GeometrySettings carries codec-specific encoding parameters. The player
// passes them through to the decoder untouched.
type GeometrySettings struct {
	VertexCount int `json:"vertexCount,omitempty"`
	Simplified  bool `json:"simplified,omitempty"`
}

// TextureStream holds the quality targets available for one texture type.
type TextureStream struct {
	Targets map[string]TextureTarget `json:"targets"`
}

// TextureTarget is one quality tier of a texture type. All tags under a
// target share the target's frame rate and frame count; only the take
// differs. FramesPerSegment > 1 means the encoded assets group that many
// frames into one stored segment.
type TextureTarget struct {
	FrameRate        float64    `json:"frameRate"`
	FrameCount       int        `json:"frameCount"`
	Format           string     `json:"format"`
	Path             string     `json:"path"`
	FramesPerSegment int        `json:"framesPerSegment,omitempty"`
	Padding          int        `json:"padding,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Resolution       Resolution `json:"resolution,omitempty"`
}

// Resolution is a texture's pixel dimensions.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validation errors returned by Parse.
var (
	ErrNoGeometry  = errors.New("manifest: no geometry targets")
	ErrBadTarget   = errors.New("manifest: invalid target")
)

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Read decodes and validates a manifest document from r.
func Read(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("manifest: read: %w", err)
	}
	return Parse(data)
}

func (m *Manifest) validate() error {
	if len(m.Geometry.Targets) == 0 {
		return ErrNoGeometry
	}
	for name, t := range m.Geometry.Targets {
		if t.FrameRate <= 0 || t.FrameCount <= 0 {
			return fmt.Errorf("%w: geometry target %q: frameRate=%v frameCount=%d",
				ErrBadTarget, name, t.FrameRate, t.FrameCount)
		}
	}
	for typ, stream := range m.Texture {
		for name, t := range stream.Targets {
			if t.FrameRate <= 0 || t.FrameCount <= 0 {
				return fmt.Errorf("%w: texture %s target %q: frameRate=%v frameCount=%d",
					ErrBadTarget, typ, name, t.FrameRate, t.FrameCount)
			}
			if t.FramesPerSegment < 0 {
				return fmt.Errorf("%w: texture %s target %q: negative framesPerSegment",
					ErrBadTarget, typ, name)
			}
		}
	}
	return nil
}

// TagsOf returns the tags available for a texture target, defaulting to the
// single untagged take.
func (t TextureTarget) TagsOf() []string {
	if len(t.Tags) == 0 {
		return []string{media.DefaultTag}
	}
	return t.Tags
}

// SegmentGrouping returns the number of frames per stored segment, never
// less than 1.
func (t TextureTarget) SegmentGrouping() int {
	if t.FramesPerSegment <= 1 {
		return 1
	}
	return t.FramesPerSegment
}

// formatRank orders texture formats by decode capability; unknown formats
// rank below known ones so they sort to the low end of the priority list.
func formatRank(format string) int {
	switch format {
	case TextureFormatKTX2:
		return 1
	case TextureFormatASTC:
		return 2
	case TextureFormatBasisU:
		return 3
	default:
		return 0
	}
}

// TexturePriority returns target names ordered lowest quality first. The
// order is format capability rank, then resolution area times frame rate.
// The adaptive controller steps through this list one index at a time.
func (s TextureStream) TexturePriority() []string {
	names := make([]string, 0, len(s.Targets))
	for name := range s.Targets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.Targets[names[i]], s.Targets[names[j]]
		ra, rb := formatRank(a.Format), formatRank(b.Format)
		if ra != rb {
			return ra < rb
		}
		pa := float64(a.Resolution.Width*a.Resolution.Height) * a.FrameRate
		pb := float64(b.Resolution.Width*b.Resolution.Height) * b.FrameRate
		if pa != pb {
			return pa < pb
		}
		return names[i] < names[j]
	})
	return names
}

// GeometryPriority returns geometry target names ordered lowest quality
// first, by vertex count then frame rate.
func (s GeometryStream) GeometryPriority() []string {
	names := make([]string, 0, len(s.Targets))
	for name := range s.Targets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.Targets[names[i]], s.Targets[names[j]]
		if a.Settings.VertexCount != b.Settings.VertexCount {
			return a.Settings.VertexCount < b.Settings.VertexCount
		}
		if a.FrameRate != b.FrameRate {
			return a.FrameRate < b.FrameRate
		}
		return names[i] < names[j]
	})
	return names
}

// FilterTargets returns the subset of a texture stream's priority list whose
// format is in supported, preserving priority order. An empty supported list
// accepts every format.
func (s TextureStream) FilterTargets(supported []string) []string {
	order := s.TexturePriority()
	if len(supported) == 0 {
		return order
	}
	ok := make(map[string]bool, len(supported))
	for _, f := range supported {
		ok[f] = true
	}
	out := order[:0:0]
	for _, name := range order {
		if ok[s.Targets[name].Format] {
			out = append(out, name)
		}
	}
	return out
}

// AudioSupported reports whether any of the audio track's formats is in
// supported. A nil audio track is never supported; an empty supported list
// accepts every format.
func (m *Manifest) AudioSupported(supported []string) bool {
	if m.Audio == nil {
		return false
	}
	if len(supported) == 0 {
		return true
	}
	for _, have := range m.Audio.Formats {
		for _, want := range supported {
			if have == want {
				return true
			}
		}
	}
	return false
}
