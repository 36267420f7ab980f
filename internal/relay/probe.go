package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// ErrProxyAuthRequired is returned by Probe when an HTTP upstream answers 407.
var ErrProxyAuthRequired = errors.New("upstream proxy rejected credentials (407)")

// Probe opens one tunnel to target through the upstream to check that the
// credentials work before a browser is pointed at a relay.
func Probe(ctx context.Context, kind Kind, up Upstream, target string, timeout time.Duration) error {
	if err := up.validate(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch kind {
	case KindSOCKS5:
		return probeSOCKS5(ctx, up, target, timeout)
	case KindHTTP:
		return probeHTTP(ctx, up, target)
	default:
		return fmt.Errorf("unknown relay type %q", kind)
	}
}

func probeSOCKS5(ctx context.Context, up Upstream, target string, timeout time.Duration) error {
	var auth *proxy.Auth
	if up.Username != "" || up.Password != "" {
		auth = &proxy.Auth{User: up.Username, Password: up.Password}
	}
	dialer, err := proxy.SOCKS5("tcp", up.Address(), auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("socks5 dialer: %w", err)
	}
	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return errors.New("socks5 dialer does not support contexts")
	}
	conn, err := cd.DialContext(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("socks5 probe %s: %w", target, err)
	}
	return conn.Close()
}

func probeHTTP(ctx context.Context, up Upstream, target string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", up.Address())
	if err != nil {
		return fmt.Errorf("upstream connect: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := "CONNECT " + target + " HTTP/1.1\r\nHost: " + target + "\r\n" + basicAuthHeader(up.Username, up.Password) + "\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("write probe request: %w", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: http.MethodConnect})
	if err != nil {
		return fmt.Errorf("read probe response: %w", err)
	}
	_ = resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusProxyAuthRequired:
		return ErrProxyAuthRequired
	default:
		return fmt.Errorf("upstream answered %s", resp.Status)
	}
}
