package page

import (
	"net/url"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
)

// Sniffer watches the page's network traffic for stream requests. Its job
// is the request headers: host CDNs gate manifests behind referer and
// cookie checks, so refetching one from outside the page only works with
// the headers the page itself sent.

// streamMIMETypes are response types that confirm a stream request.
var streamMIMETypes = map[string]bool{
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
	"application/x-mpegurl":         true,
	"application/vnd.apple.mpegurl": true,
	"video/mp4":                     true,
	"video/webm":                    true,
	"video/x-matroska":              true,
}

var streamExtensions = []string{".m3u8", ".m3u", ".mp4", ".webm", ".mkv"}

// capturedStream is one observed stream request.
type capturedStream struct {
	url     string
	headers map[string]string
}

// Sniffer accumulates stream requests observed on the session. Safe for
// concurrent use; events arrive on the CDP listener goroutine.
type Sniffer struct {
	mu       sync.Mutex
	captures []capturedStream
}

const maxCaptures = 32

// listen feeds CDP network events into the sniffer.
func (sn *Sniffer) listen(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if looksLikeStream(e.Request.URL) {
			sn.record(e.Request.URL, headerMap(e.Request.Headers))
		}

	case *network.EventResponseReceived:
		if streamMIMETypes[strings.ToLower(e.Response.MimeType)] {
			sn.record(e.Response.URL, headerMap(requestHeadersOf(e.Response)))
		}
	}
}

func (sn *Sniffer) record(rawURL string, headers map[string]string) {
	sn.mu.Lock()
	defer sn.mu.Unlock()

	if len(sn.captures) >= maxCaptures {
		return
	}
	for _, c := range sn.captures {
		if c.url == rawURL {
			return
		}
	}
	sn.captures = append(sn.captures, capturedStream{url: rawURL, headers: headers})
}

// Headers returns the request headers observed for a stream URL. Falls back
// to the most recent capture's headers when the exact URL was never seen —
// variant playlists share the page's credentials with their master.
func (sn *Sniffer) Headers(rawURL string) map[string]string {
	sn.mu.Lock()
	defer sn.mu.Unlock()

	for _, c := range sn.captures {
		if c.url == rawURL {
			return c.headers
		}
	}
	if n := len(sn.captures); n > 0 {
		return sn.captures[n-1].headers
	}
	return nil
}

func looksLikeStream(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, ext := range streamExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// requestHeadersOf prefers the request headers Chrome attached to the
// response, falling back to response headers when unpopulated.
func requestHeadersOf(r *network.Response) network.Headers {
	if len(r.RequestHeaders) > 0 {
		return r.RequestHeaders
	}
	return r.Headers
}

func headerMap(h network.Headers) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			m[k] = s
		}
	}
	return m
}
