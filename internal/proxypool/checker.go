package proxypool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// Checker probes whether a proxy can actually reach the signup target.
// A dead proxy is cheaper to find here than halfway through a signup.
type Checker struct {
	target  string
	timeout time.Duration
}

// NewChecker creates a liveness checker against the given https target
// (host or host:port form, without scheme).
func NewChecker(target string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Checker{target: target, timeout: timeout}
}

// Check probes the proxy against the target by scheme: an https HEAD
// request through HTTP proxies, a tunnel dial through SOCKS5 proxies.
func (c *Checker) Check(p Proxy) error {
	if p.Scheme == SchemeSOCKS5 {
		return c.checkSOCKS5(p)
	}
	return c.checkHTTP(p)
}

// checkHTTP issues a HEAD request to the target through the proxy and
// reports whether it answered with a usable status.
func (c *Checker) checkHTTP(p Proxy) error {
	dialer := &net.Dialer{
		Timeout:   c.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy: http.ProxyURL(p.URL()),
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       c.timeout,
		TLSHandshakeTimeout:   c.timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
	defer transport.CloseIdleConnections()

	req, err := http.NewRequest(http.MethodHead, "https://"+c.target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}

// checkSOCKS5 probes a SOCKS5 proxy by dialing the target through it.
func (c *Checker) checkSOCKS5(p Proxy) error {
	var auth *proxy.Auth
	if p.Username != "" {
		auth = &proxy.Auth{User: p.Username, Password: p.Password}
	}

	dialer, err := proxy.SOCKS5("tcp", p.ID(), auth, &net.Dialer{Timeout: c.timeout})
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	target := c.target
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, "443")
	}

	conn, err := dialer.(proxy.ContextDialer).DialContext(ctx, "tcp", target)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}
