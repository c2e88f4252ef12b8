package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// Check verifies that endpoint can reach target and returns the latency.
// SOCKS5 endpoints dial target (host:port or URL) directly; HTTP endpoints
// fetch target through the proxy.
func Check(ctx context.Context, endpoint, target string, timeout time.Duration) (time.Duration, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidProxy, endpoint)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()

	switch u.Scheme {
	case "socks5", "socks5h":
		err = checkSOCKS(ctx, u, target, timeout)
	case "http", "https":
		err = checkHTTP(ctx, u, target)
	default:
		return 0, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
	if err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func checkSOCKS(ctx context.Context, u *url.URL, target string, timeout time.Duration) error {
	dialer, err := xproxy.FromURL(u, &net.Dialer{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("socks dialer: %w", err)
	}
	addr := target
	if t, err := url.Parse(target); err == nil && t.Host != "" {
		addr = t.Host
		if t.Port() == "" {
			port := "80"
			if t.Scheme == "https" {
				port = "443"
			}
			addr = net.JoinHostPort(t.Hostname(), port)
		}
	}

	var conn net.Conn
	if cd, ok := dialer.(xproxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s via %s: %w", addr, u.Host, err)
	}
	return conn.Close()
}

func checkHTTP(ctx context.Context, u *url.URL, target string) error {
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request via %s: %w", u.Host, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusProxyAuthRequired {
		return fmt.Errorf("proxy %s: %s", u.Host, resp.Status)
	}
	return nil
}
