package page

import (
	"testing"

	"github.com/chromedp/cdproto/network"
)

func TestLooksLikeStream(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example/v/master.m3u8", true},
		{"https://cdn.example/v/master.m3u8?token=abc", true},
		{"https://cdn.example/v/seg.mp4", true},
		{"https://cdn.example/v/page.html", false},
		{"https://cdn.example/api/m3u8-list", false},
	}
	for _, c := range cases {
		if got := looksLikeStream(c.url); got != c.want {
			t.Errorf("looksLikeStream(%q) = %t, want %t", c.url, got, c.want)
		}
	}
}

func TestSnifferRecordsRequestHeaders(t *testing.T) {
	var sn Sniffer
	sn.listen(&network.EventRequestWillBeSent{
		Request: &network.Request{
			URL: "https://cdn.example/master.m3u8",
			Headers: network.Headers{
				"Referer": "https://host.example/watch",
				"Cookie":  "sid=abc",
			},
		},
	})

	h := sn.Headers("https://cdn.example/master.m3u8")
	if h["Referer"] != "https://host.example/watch" || h["Cookie"] != "sid=abc" {
		t.Fatalf("headers not captured: %v", h)
	}
}

func TestSnifferDeduplicates(t *testing.T) {
	var sn Sniffer
	for i := 0; i < 3; i++ {
		sn.record("https://cdn.example/master.m3u8", map[string]string{"A": "1"})
	}
	sn.mu.Lock()
	n := len(sn.captures)
	sn.mu.Unlock()
	if n != 1 {
		t.Fatalf("want 1 capture, got %d", n)
	}
}

func TestSnifferHeaderFallbackToLatestCapture(t *testing.T) {
	var sn Sniffer
	sn.record("https://cdn.example/master.m3u8", map[string]string{"Referer": "r1"})
	sn.record("https://cdn.example/seg.mp4", map[string]string{"Referer": "r2"})

	// Variant playlist the page never requested directly.
	h := sn.Headers("https://cdn.example/high/index.m3u8")
	if h["Referer"] != "r2" {
		t.Fatalf("want latest capture's headers, got %v", h)
	}
}

func TestSnifferIgnoresNonStreamTraffic(t *testing.T) {
	var sn Sniffer
	sn.listen(&network.EventRequestWillBeSent{
		Request: &network.Request{URL: "https://host.example/analytics.js"},
	})
	if h := sn.Headers("https://host.example/analytics.js"); h != nil {
		t.Fatalf("non-stream request captured: %v", h)
	}
}

func TestSnifferConfirmsByMIME(t *testing.T) {
	var sn Sniffer
	// Extension-less URL, confirmed by the response's MIME type.
	sn.listen(&network.EventResponseReceived{
		Response: &network.Response{
			URL:      "https://cdn.example/stream?id=7",
			MimeType: "application/vnd.apple.mpegURL",
			RequestHeaders: network.Headers{
				"Referer": "https://host.example/watch",
			},
		},
	})
	if h := sn.Headers("https://cdn.example/stream?id=7"); h["Referer"] == "" {
		t.Fatal("MIME-confirmed stream not captured")
	}
}
