package hls

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsManifestURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example/stream.m3u8", true},
		{"https://cdn.example/stream.M3U8?token=abc", true},
		{"https://cdn.example/old.m3u", true},
		{"https://cdn.example/video.mp4", false},
		{"https://cdn.example/m3u8/info.json", false},
		{"://bad", false},
	}
	for _, c := range cases {
		if got := IsManifestURL(c.url); got != c.want {
			t.Errorf("IsManifestURL(%q) = %t, want %t", c.url, got, c.want)
		}
	}
}

const masterManifest = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
high/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
mid/index.m3u8
`

const mediaManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.0,
seg0.ts
#EXT-X-ENDLIST
`

func TestVariantsFromMaster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(masterManifest))
	}))
	defer srv.Close()

	variants, err := Variants(context.Background(), time.Second, srv.URL+"/master.m3u8", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(variants) != 3 {
		t.Fatalf("want 3 variants, got %d", len(variants))
	}
	// Sorted by bandwidth descending.
	if variants[0].Resolution != "1920x1080" || variants[2].Resolution != "640x360" {
		t.Fatalf("wrong order: %+v", variants)
	}
	// Relative URIs resolved against the manifest URL.
	if variants[0].URI != srv.URL+"/high/index.m3u8" {
		t.Fatalf("URI not resolved: %s", variants[0].URI)
	}
}

func TestVariantsFromMediaPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(mediaManifest))
	}))
	defer srv.Close()

	variants, err := Variants(context.Background(), time.Second, srv.URL+"/index.m3u8", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(variants) != 1 || variants[0].URI != srv.URL+"/index.m3u8" {
		t.Fatalf("media playlist must yield itself: %+v", variants)
	}
}

func TestVariantsSendsHeaders(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte(mediaManifest))
	}))
	defer srv.Close()

	headers := map[string]string{
		"Referer": "https://host.example/watch",
		":method": "GET", // pseudo-headers must be skipped
	}
	if _, err := Variants(context.Background(), time.Second, srv.URL+"/index.m3u8", headers); err != nil {
		t.Fatal(err)
	}
	if gotReferer != "https://host.example/watch" {
		t.Fatalf("referer not forwarded: %q", gotReferer)
	}
}

func TestVariantsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := Variants(context.Background(), time.Second, srv.URL+"/index.m3u8", nil); err == nil {
		t.Fatal("want error on HTTP 403")
	}
}

func TestLabel(t *testing.T) {
	cases := []struct {
		v    Variant
		want string
	}{
		{Variant{Resolution: "1920x1080"}, "1080p"},
		{Variant{Resolution: "1280x720", Bandwidth: 2500000}, "720p"},
		{Variant{Bandwidth: 800000}, "800 kbps"},
		{Variant{}, "Auto"},
	}
	for _, c := range cases {
		if got := Label(c.v); got != c.want {
			t.Errorf("Label(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}
