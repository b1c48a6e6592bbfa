package checker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

type probeResponse struct {
	status int
	server []string
	body   []byte
}

// createTransport builds the shared probe transport. Keep-alives are off so
// every probe opens and releases its own connection.
func createTransport(timeout time.Duration, socksProxy string) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: -1,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if socksProxy == "" {
		return transport, nil
	}

	proxyURL, err := url.Parse(socksProxy)
	if err != nil {
		return nil, fmt.Errorf("parse probe proxy: %w", err)
	}

	socksDialer, err := proxy.FromURL(proxyURL, dialer)
	if err != nil {
		return nil, fmt.Errorf("create probe proxy dialer: %w", err)
	}

	if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return socksDialer.Dial(network, addr)
		}
	}

	return transport, nil
}

// targetURL renders http://<addr>/ with the port omitted when it is 80.
func targetURL(addr netip.Addr, port uint16) string {
	host := addr.String()
	switch {
	case port != 0 && port != 80:
		host = net.JoinHostPort(host, strconv.Itoa(int(port)))
	case addr.Is6():
		host = "[" + host + "]"
	}

	return (&url.URL{Scheme: "http", Host: host, Path: "/"}).String()
}

// probeRequest issues the single GET of a probe. Non-2xx final statuses are
// returned as errors, matching a raise-for-status client.
func (c *Classifier) probeRequest(ctx context.Context, target string) (probeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return probeResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Connection", "close")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return probeResponse{}, err
	}
	defer resp.Body.Close()

	out := probeResponse{
		status: resp.StatusCode,
		server: resp.Header.Values("Server"),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return out, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if headerMatches(out.server, c.token) {
		return out, nil
	}

	out.body, err = io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return out, fmt.Errorf("read body: %w", err)
	}

	return out, nil
}
