// Package hls detects streaming-manifest URLs and lists their variants, so
// the quality menu can be populated when the host exposes a manifest
// directly instead of a quality option list.
package hls

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

// Variant is one quality level of a master playlist.
type Variant struct {
	URI        string
	Bandwidth  uint32
	Resolution string
}

// IsManifestURL reports whether a source URL looks like an HLS manifest.
func IsManifestURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.HasSuffix(p, ".m3u8") || strings.HasSuffix(p, ".m3u")
}

// Variants fetches a manifest and returns its variant streams sorted by
// bandwidth descending. A media playlist yields a single entry for the
// original URL. The request carries the given headers so host-issued
// manifests keep working behind referer checks.
func Variants(ctx context.Context, timeout time.Duration, manifestURL string, headers map[string]string) ([]Variant, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest URL: %w", err)
	}

	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		if strings.HasPrefix(k, ":") {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching manifest: HTTP %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	if listType != m3u8.MASTER {
		return []Variant{{URI: base.String()}}, nil
	}

	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type %T", playlist)
	}

	var variants []Variant
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		resolved, err := base.Parse(v.URI)
		if err != nil {
			continue
		}
		variants = append(variants, Variant{
			URI:        resolved.String(),
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
		})
	}

	if len(variants) == 0 {
		return []Variant{{URI: base.String()}}, nil
	}

	slices.SortFunc(variants, func(a, b Variant) int {
		return cmp.Compare(b.Bandwidth, a.Bandwidth)
	})
	return variants, nil
}

// Label renders a human-readable quality label for a variant.
func Label(v Variant) string {
	if v.Resolution != "" {
		if _, h, ok := strings.Cut(v.Resolution, "x"); ok {
			return h + "p"
		}
		return v.Resolution
	}
	if v.Bandwidth > 0 {
		return fmt.Sprintf("%d kbps", v.Bandwidth/1000)
	}
	return "Auto"
}
