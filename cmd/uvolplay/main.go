// Command uvolplay runs a headless UVOL playback session against a manifest,
// logging presentation progress and serving Prometheus metrics. It exercises
// the full pipeline (fetch, decode, prefetch scheduling, adaptive quality)
// without a rendering surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/volcap/uvol/fetch"
	"github.com/volcap/uvol/manifest"
	"github.com/volcap/uvol/media"
	"github.com/volcap/uvol/player"
)

var version = "dev"

func main() {
	// .env is optional; system env and defaults cover everything.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	manifestRef := os.Getenv("MANIFEST")
	if manifestRef == "" {
		slog.Error("MANIFEST env var is required (path or URL)")
		os.Exit(1)
	}
	baseURL := envOr("BASE_URL", deriveBase(manifestRef))
	metricsAddr := envOr("METRICS_ADDR", ":9090")

	cfg, err := loadConfig(os.Getenv("CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	client := fetch.NewClient(fetch.ClientOptions{
		Timeout:     time.Duration(cfg.FetchTimeout),
		EnableHTTP3: cfg.EnableHTTP3,
	})

	man, err := loadManifest(client, manifestRef)
	if err != nil {
		slog.Error("failed to load manifest", "ref", manifestRef, "error", err)
		os.Exit(1)
	}

	slog.Info("uvolplay starting",
		"version", version,
		"manifest", manifestRef,
		"geometry_targets", len(man.Geometry.Targets),
		"texture_types", len(man.Texture),
		"metrics", metricsAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	ended := make(chan struct{})
	p := player.New(player.Options{
		BufferDuration:          time.Duration(cfg.BufferDuration),
		IntervalDuration:        time.Duration(cfg.IntervalDuration),
		BaseURL:                 baseURL,
		GeometryDecoder:         fetch.NewHTTPGeometryDecoder(client, nil),
		TextureDecoder:          fetch.NewHTTPTextureDecoder(client, nil),
		SupportedTextureFormats: cfg.TextureFormats,
		SupportedAudioFormats:   cfg.AudioFormats,
		EnableMetrics:           true,
		OnBuffering: func(fraction float64) {
			slog.Debug("buffering", "fill", fmt.Sprintf("%.2f", fraction))
		},
		OnTrackEnd: func() {
			close(ended)
		},
	})

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: p.MetricsHandler()}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("metrics server listening", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		defer cancel()
		if err := p.PlayTrack(ctx, man, nil); err != nil {
			return fmt.Errorf("play track: %w", err)
		}
		defer p.Stop()

		presenter := &logPresenter{log: slog.With("component", "presenter")}
		ticker := time.NewTicker(time.Second / time.Duration(cfg.PresentationHz))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ended:
				slog.Info("playback finished", "frames_presented", presenter.presented)
				return nil
			case <-ticker.C:
				p.Update(presenter)
			}
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("uvolplay error", "error", err)
		os.Exit(1)
	}
}

// logPresenter stands in for a rendering surface: it counts presented frames
// and logs roughly once per second of presentation.
type logPresenter struct {
	log       *slog.Logger
	presented int
	lastLog   time.Time
}

func (l *logPresenter) Present(geometry *media.GeometryFrame, textures map[media.TextureType]*media.TextureFrame) {
	l.presented++
	if time.Since(l.lastLog) < time.Second {
		return
	}
	l.lastLog = time.Now()

	missing := 0
	for _, tex := range textures {
		if tex == nil {
			missing++
		}
	}
	l.log.Info("presenting",
		"frames_presented", l.presented,
		"texture_types", len(textures),
		"missing_textures", missing,
	)
}

// loadManifest reads a manifest from a local path or fetches it from a URL.
func loadManifest(client *fetch.Client, ref string) (*manifest.Manifest, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		data, err := client.Fetch(context.Background(), ref)
		if err != nil {
			return nil, err
		}
		return manifest.Parse(data)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data)
}

// deriveBase strips the last path element from a manifest URL so relative
// asset paths resolve next to the manifest. Local paths yield their directory.
func deriveBase(ref string) string {
	if i := strings.LastIndex(ref, "/"); i > 0 {
		return ref[:i]
	}
	return "."
}
