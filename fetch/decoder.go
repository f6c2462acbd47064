package fetch

import (
	"context"
	"fmt"

	"github.com/volcap/uvol/media"
)

// GeometryDecoder turns an asset URL into a decoded geometry frame. A decode
// that returns an error leaves the frame absent; the player never retries
// the same frame within a session.
type GeometryDecoder interface {
	Decode(ctx context.Context, url string) (*media.GeometryFrame, error)
}

// TextureDecoder turns an asset URL into a decoded texture frame (or
// segment, when the target batches frames).
type TextureDecoder interface {
	Decode(ctx context.Context, url string) (*media.TextureFrame, error)
}

// GeometryBuilder converts fetched bytes into a renderer-ready mesh payload
// and an optional release hook. This is where a codec-specific decoder
// (Corto, Draco) plugs in.
type GeometryBuilder func(data []byte) (payload any, release func(), err error)

// TextureBuilder converts fetched bytes into a renderer-ready texture
// payload and an optional release hook.
type TextureBuilder func(data []byte) (payload any, release func(), err error)

// HTTPGeometryDecoder fetches an asset and hands the bytes to a
// GeometryBuilder. With a nil builder the raw bytes become the payload,
// which suits headless runs and tests.
type HTTPGeometryDecoder struct {
	client *Client
	build  GeometryBuilder
}

// NewHTTPGeometryDecoder creates a geometry decoder backed by client.
func NewHTTPGeometryDecoder(client *Client, build GeometryBuilder) *HTTPGeometryDecoder {
	return &HTTPGeometryDecoder{client: client, build: build}
}

// Decode implements GeometryDecoder.
func (d *HTTPGeometryDecoder) Decode(ctx context.Context, url string) (*media.GeometryFrame, error) {
	data, err := d.client.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if d.build == nil {
		return media.NewGeometryFrame(data, nil), nil
	}
	payload, release, err := d.build(data)
	if err != nil {
		return nil, fmt.Errorf("decode geometry %s: %w", url, err)
	}
	return media.NewGeometryFrame(payload, release), nil
}

// HTTPTextureDecoder fetches an asset and hands the bytes to a
// TextureBuilder. With a nil builder the raw bytes become the payload.
type HTTPTextureDecoder struct {
	client *Client
	build  TextureBuilder
}

// NewHTTPTextureDecoder creates a texture decoder backed by client.
func NewHTTPTextureDecoder(client *Client, build TextureBuilder) *HTTPTextureDecoder {
	return &HTTPTextureDecoder{client: client, build: build}
}

// Decode implements TextureDecoder.
func (d *HTTPTextureDecoder) Decode(ctx context.Context, url string) (*media.TextureFrame, error) {
	data, err := d.client.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if d.build == nil {
		return media.NewTextureFrame(data, nil), nil
	}
	payload, release, err := d.build(data)
	if err != nil {
		return nil, fmt.Errorf("decode texture %s: %w", url, err)
	}
	return media.NewTextureFrame(payload, release), nil
}
