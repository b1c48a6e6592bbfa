package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultToken        = "cloudflare"
	DefaultTimeout      = 5 * time.Second
	DefaultMaxBodyBytes = 1 << 20
)

var ErrInvalidCandidate = errors.New("candidate is not an IP address")

// Signal names the response part that matched the token.
type Signal int

const (
	SignalNone Signal = iota
	SignalHeader
	SignalBody
)

func (s Signal) String() string {
	switch s {
	case SignalHeader:
		return "server-header"
	case SignalBody:
		return "body"
	default:
		return "none"
	}
}

// Outcome is the full result of one probe. Err is set for invalid candidates
// and for every network-level failure; Positive is false whenever Err is set.
type Outcome struct {
	Positive bool
	Signal   Signal
	Status   int
	Err      error
}

// ProbeFailure wraps a network or protocol error seen while probing.
type ProbeFailure struct {
	Candidate string
	Status    int
	Err       error
}

func (e *ProbeFailure) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Candidate, e.Err)
}

func (e *ProbeFailure) Unwrap() error {
	return e.Err
}

type Options struct {
	Token        string
	Timeout      time.Duration
	Port         uint16
	UserAgent    string
	MaxBodyBytes int64

	// SocksProxy routes probes through a socks5:// egress when set.
	SocksProxy string

	// Transport replaces the default probe transport.
	Transport http.RoundTripper
}

// Classifier decides whether an address is fronted by the target service.
// It holds no mutable state and may be shared by any number of workers.
type Classifier struct {
	client       *http.Client
	token        []byte
	port         uint16
	userAgent    string
	maxBodyBytes int64
}

func NewClassifier(opts Options) (*Classifier, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		token = DefaultToken
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	transport := opts.Transport
	if transport == nil {
		created, err := createTransport(opts.Timeout, opts.SocksProxy)
		if err != nil {
			return nil, err
		}
		transport = created
	}

	return &Classifier{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		token:        bytes.ToLower([]byte(token)),
		port:         opts.Port,
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Classify reports whether candidate is fronted by the target service. It
// never fails: invalid input and probe failures are negative.
func (c *Classifier) Classify(ctx context.Context, candidate string) bool {
	outcome := c.Probe(ctx, candidate)
	if outcome.Err != nil {
		log.Debug("Probe failed", "ip", candidate, "error", outcome.Err)
	}
	return outcome.Positive
}

// Probe runs the single request for candidate and applies the matching rule:
// Server header first, then the raw body.
func (c *Classifier) Probe(ctx context.Context, candidate string) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}

	addr, err := netip.ParseAddr(candidate)
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: %q", ErrInvalidCandidate, candidate)}
	}

	resp, err := c.probeRequest(ctx, targetURL(addr, c.port))
	if err != nil {
		return Outcome{
			Status: resp.status,
			Err:    &ProbeFailure{Candidate: candidate, Status: resp.status, Err: err},
		}
	}

	outcome := Outcome{Status: resp.status}
	switch {
	case headerMatches(resp.server, c.token):
		outcome.Positive, outcome.Signal = true, SignalHeader
	case containsFold(resp.body, c.token):
		outcome.Positive, outcome.Signal = true, SignalBody
	}

	return outcome
}

func headerMatches(values []string, token []byte) bool {
	for _, value := range values {
		if containsFold([]byte(value), token) {
			return true
		}
	}
	return false
}

// containsFold expects token to be lower case already.
func containsFold(haystack, token []byte) bool {
	if len(haystack) < len(token) {
		return false
	}
	return bytes.Contains(bytes.ToLower(haystack), token)
}
