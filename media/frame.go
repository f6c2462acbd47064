// Package media defines the decoded frame types and composite store keys that
// flow through the UVOL playback pipeline, from decode through presentation.
package media

import "sync"

// TextureType identifies an independent texture stream within a track, such
// as the base-color map or the normal map. Each type carries its own quality
// targets and its own prefetch cursor.
type TextureType string

// Texture types commonly present in UVOL manifests.
const (
	TextureBaseColor TextureType = "baseColor"
	TextureNormal    TextureType = "normal"
	TextureMetallic  TextureType = "metallicRoughness"
	TextureEmissive  TextureType = "emissive"
)

// DefaultTag is the tag assigned to texture takes captured without an
// explicit tag. The presenter's cross-target fallback search is restricted
// to this tag.
const DefaultTag = "default"

// Frame is a decoded, renderer-ready frame. Dispose releases any GPU-side or
// pooled resources backing the frame; the player calls it when the frame is
// evicted or the track is torn down.
type Frame interface {
	Dispose()
}

// GeometryFrame holds one decoded geometry frame (a mesh) ready for
// presentation. Payload is opaque to the player; the renderer knows its
// concrete type.
type GeometryFrame struct {
	Payload any

	release sync.Once
	onFree  func()
}

// NewGeometryFrame wraps a decoded mesh payload. onFree may be nil; when set
// it runs once on Dispose.
func NewGeometryFrame(payload any, onFree func()) *GeometryFrame {
	return &GeometryFrame{Payload: payload, onFree: onFree}
}

// Dispose releases the frame's resources. Safe to call more than once.
func (f *GeometryFrame) Dispose() {
	f.release.Do(func() {
		if f.onFree != nil {
			f.onFree()
		}
		f.Payload = nil
	})
}

// TextureFrame holds one decoded texture frame or segment. When the target
// groups frames into segments, a single TextureFrame covers every frame in
// its segment and Payload carries the whole batch.
type TextureFrame struct {
	Payload any
	Width   int
	Height  int

	release sync.Once
	onFree  func()
}

// NewTextureFrame wraps a decoded texture payload. onFree may be nil.
func NewTextureFrame(payload any, onFree func()) *TextureFrame {
	return &TextureFrame{Payload: payload, onFree: onFree}
}

// Dispose releases the frame's resources. Safe to call more than once.
func (f *TextureFrame) Dispose() {
	f.release.Do(func() {
		if f.onFree != nil {
			f.onFree()
		}
		f.Payload = nil
	})
}

// GeometryKey identifies a decoded geometry frame in the store.
type GeometryKey struct {
	Target string
	Frame  int
}

// TextureKey identifies a decoded texture frame in the store. Frame is the
// segment index when the target groups frames into segments, otherwise the
// raw frame number.
type TextureKey struct {
	Type   TextureType
	Tag    string
	Target string
	Frame  int
}
