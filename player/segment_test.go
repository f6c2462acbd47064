package player

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volcap/uvol/manifest"
	"github.com/volcap/uvol/media"
)

const segmentedManifest = `{
  "version": 1,
  "duration": 10,
  "geometry": {
    "targets": {
      "mesh": {
        "frameRate": 30,
        "frameCount": 300,
        "format": "DRACO",
        "path": "geometry/[frame].drc"
      }
    }
  },
  "texture": {
    "baseColor": {
      "targets": {
        "low": {
          "frameRate": 30,
          "frameCount": 300,
          "format": "KTX2",
          "path": "texture/[target]/[segment].ktx2",
          "framesPerSegment": 10,
          "resolution": {"width": 1024, "height": 1024}
        }
      }
    }
  }
}`

// When the format groups frames into segments, fetch and store keys must use
// segment identity while presentation-time comparisons stay per frame.
func TestSegmentedTextureFetchAndLookup(t *testing.T) {
	t.Parallel()

	geoDec := &fakeGeometryDecoder{}
	texDec := &fakeTextureDecoder{}
	p := New(Options{
		BufferDuration:   4 * time.Second,
		IntervalDuration: time.Hour,
		BaseURL:          "https://cdn.test",
		GeometryDecoder:  geoDec,
		TextureDecoder:   texDec,
	})
	t.Cleanup(p.Stop)

	man, err := manifest.Parse([]byte(segmentedManifest))
	require.NoError(t, err)
	require.NoError(t, p.PlayTrack(context.Background(), man, nil))

	// 4s of 30fps texture is frames 0..119, stored as segments 0..11.
	texDec.mu.Lock()
	urls := make([]string, len(texDec.urls))
	copy(urls, texDec.urls)
	texDec.mu.Unlock()
	require.Len(t, urls, 12)
	for _, u := range urls {
		assert.True(t, strings.HasPrefix(u, "https://cdn.test/texture/low/"), "url %s", u)
	}

	sess := p.current()
	require.NotNil(t, sess)
	assert.Equal(t, 119, sess.sch.Cursor("texture:baseColor"))

	// Frame 35 lives in segment 3.
	tex, ok := sess.texLookup(media.TextureBaseColor, media.DefaultTag, "low",
		man.Texture[media.TextureBaseColor].Targets["low"], 35.0/30.0)
	require.True(t, ok)
	assert.Contains(t, tex.Payload.(string), "/3.ktx2")
}
