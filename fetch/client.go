// Package fetch retrieves encoded frame assets and hands them to decoders.
// The player treats decoders as external collaborators: it only needs
// Decode(ctx, url) to eventually yield a disposable frame. This package
// provides the asset HTTP client (with an optional HTTP/3 transport), the
// manifest path-template resolver, and reference decoders that pair the
// client with a caller-supplied payload builder.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"
)

// ClientOptions configures the asset client.
type ClientOptions struct {
	// Timeout bounds a single asset request. Zero means no timeout beyond
	// the caller's context.
	Timeout time.Duration
	// Transport overrides the round tripper. Nil uses the default HTTP
	// transport.
	Transport http.RoundTripper
	// TLSConfig is used by the HTTP/3 transport when EnableHTTP3 is set.
	TLSConfig *tls.Config
	// EnableHTTP3 fetches assets over HTTP/3. Ignored when Transport is set.
	EnableHTTP3 bool
}

// Client fetches encoded frame assets over HTTP.
type Client struct {
	hc *http.Client
}

// NewClient creates an asset client.
func NewClient(opts ClientOptions) *Client {
	transport := opts.Transport
	if transport == nil && opts.EnableHTTP3 {
		transport = &http3.RoundTripper{
			TLSClientConfig: opts.TLSConfig,
		}
	}
	return &Client{
		hc: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
	}
}

// Fetch retrieves the asset at url. A non-2xx status is an error; the body
// is fully read so the connection can be reused.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	return data, nil
}
