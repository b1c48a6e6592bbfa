package checker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingTransport struct {
	calls atomic.Int32
	next  http.RoundTripper
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.next.RoundTrip(req)
}

func serverPort(t *testing.T, srv *httptest.Server) uint16 {
	t.Helper()

	parsed, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	return uint16(port)
}

func newTestClassifier(t *testing.T, srv *httptest.Server, opts Options) *Classifier {
	t.Helper()

	if srv != nil {
		opts.Port = serverPort(t, srv)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}

	classifier, err := NewClassifier(opts)
	if err != nil {
		t.Fatalf("NewClassifier returned error: %v", err)
	}
	return classifier
}

func TestClassifyInvalidCandidateMakesNoRequest(t *testing.T) {
	transport := &countingTransport{next: http.DefaultTransport}
	classifier := newTestClassifier(t, nil, Options{Transport: transport})

	for _, candidate := range []string{"", "not-an-ip", "1.2.3.4/24", "<b>1.2.3.4</b>", "999.1.1.1", "example.com"} {
		if classifier.Classify(context.Background(), candidate) {
			t.Fatalf("Classify(%q) = true, want false", candidate)
		}

		outcome := classifier.Probe(context.Background(), candidate)
		if !errors.Is(outcome.Err, ErrInvalidCandidate) {
			t.Fatalf("Probe(%q) error = %v, want ErrInvalidCandidate", candidate, outcome.Err)
		}
	}

	if calls := transport.calls.Load(); calls != 0 {
		t.Fatalf("transport was called %d times, want 0", calls)
	}
}

func TestClassifyServerHeaderAnyCase(t *testing.T) {
	for _, server := range []string{"cloudflare", "CloudFlare", "CLOUDFLARE-nginx"} {
		t.Run(server, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Server", server)
				_, _ = w.Write([]byte("hello"))
			}))
			defer srv.Close()

			classifier := newTestClassifier(t, srv, Options{})
			outcome := classifier.Probe(context.Background(), "127.0.0.1")
			if !outcome.Positive {
				t.Fatalf("Probe returned negative for Server %q: %+v", server, outcome)
			}
			if outcome.Signal != SignalHeader {
				t.Fatalf("Signal = %s, want %s", outcome.Signal, SignalHeader)
			}
		})
	}
}

func TestClassifyBodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "nginx")
		_, _ = w.Write([]byte(`<html><script src="/cdn-cgi/challenge-platform/h/b/orchestrate/jsch/v1"></script><p>Performance &amp; security by CloudFlare</p></html>`))
	}))
	defer srv.Close()

	classifier := newTestClassifier(t, srv, Options{})
	outcome := classifier.Probe(context.Background(), "127.0.0.1")
	if !outcome.Positive || outcome.Signal != SignalBody {
		t.Fatalf("Probe = %+v, want positive body match", outcome)
	}
}

func TestClassifyNegative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "Apache")
		_, _ = w.Write([]byte("It works!"))
	}))
	defer srv.Close()

	classifier := newTestClassifier(t, srv, Options{})
	if classifier.Classify(context.Background(), "127.0.0.1") {
		t.Fatal("Classify returned true for a plain origin")
	}
}

func TestClassifyCustomToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "AkamaiGHost")
	}))
	defer srv.Close()

	if !newTestClassifier(t, srv, Options{Token: "akamai"}).Classify(context.Background(), "127.0.0.1") {
		t.Fatal("Classify returned false for custom token match")
	}
	if newTestClassifier(t, srv, Options{}).Classify(context.Background(), "127.0.0.1") {
		t.Fatal("Classify returned true for default token against Akamai server")
	}
}

func TestClassifyFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/landing", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("served via cloudflare"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	if !newTestClassifier(t, srv, Options{}).Classify(context.Background(), "127.0.0.1") {
		t.Fatal("Classify did not follow the redirect to the matching page")
	}
}

func TestClassifyNonSuccessStatusIsNegative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("error code: 1003"))
	}))
	defer srv.Close()

	outcome := newTestClassifier(t, srv, Options{}).Probe(context.Background(), "127.0.0.1")
	if outcome.Positive {
		t.Fatal("Probe returned positive for a 403 response")
	}

	var failure *ProbeFailure
	if !errors.As(outcome.Err, &failure) || failure.Status != http.StatusForbidden {
		t.Fatalf("Probe error = %v, want ProbeFailure with status 403", outcome.Err)
	}
}

func TestClassifyBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 64) + "cloudflare"))
	}))
	defer srv.Close()

	if newTestClassifier(t, srv, Options{MaxBodyBytes: 32}).Classify(context.Background(), "127.0.0.1") {
		t.Fatal("Classify matched a token beyond the body limit")
	}
	if !newTestClassifier(t, srv, Options{MaxBodyBytes: 1024}).Classify(context.Background(), "127.0.0.1") {
		t.Fatal("Classify missed a token within the body limit")
	}
}

func TestClassifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Header().Set("Server", "cloudflare")
	}))
	defer srv.Close()
	defer close(release)

	classifier := newTestClassifier(t, srv, Options{Timeout: 100 * time.Millisecond})

	start := time.Now()
	outcome := classifier.Probe(context.Background(), "127.0.0.1")
	if outcome.Positive {
		t.Fatal("Probe returned positive after a timeout")
	}
	if outcome.Err == nil {
		t.Fatal("Probe returned no error after a timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Probe took %s, want it bounded by the timeout", elapsed)
	}
}

func TestClassifyConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := uint16(listener.Addr().(*net.TCPAddr).Port)
	_ = listener.Close()

	classifier, err := NewClassifier(Options{Port: port, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClassifier returned error: %v", err)
	}

	if classifier.Classify(context.Background(), "127.0.0.1") {
		t.Fatal("Classify returned true for a refused connection")
	}
}

func TestClassifyCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if newTestClassifier(t, srv, Options{}).Classify(ctx, "127.0.0.1") {
		t.Fatal("Classify returned true with a cancelled context")
	}
}

func TestNewClassifierRejectsBadProxy(t *testing.T) {
	if _, err := NewClassifier(Options{SocksProxy: "gopher://proxy:70"}); err == nil {
		t.Fatal("NewClassifier accepted an unsupported proxy scheme")
	}
	if _, err := NewClassifier(Options{SocksProxy: "socks5://127.0.0.1:1080"}); err != nil {
		t.Fatalf("NewClassifier rejected a socks5 proxy: %v", err)
	}
}

func TestTargetURL(t *testing.T) {
	tests := []struct {
		addr string
		port uint16
		want string
	}{
		{"1.2.3.4", 80, "http://1.2.3.4/"},
		{"1.2.3.4", 0, "http://1.2.3.4/"},
		{"1.2.3.4", 8080, "http://1.2.3.4:8080/"},
		{"2606:4700::1", 80, "http://[2606:4700::1]/"},
		{"2606:4700::1", 8080, "http://[2606:4700::1]:8080/"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := targetURL(netip.MustParseAddr(tt.addr), tt.port); got != tt.want {
				t.Fatalf("targetURL(%s, %d) = %s, want %s", tt.addr, tt.port, got, tt.want)
			}
		})
	}
}
