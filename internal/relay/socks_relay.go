package relay

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"
)

const connectEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// handleSOCKS5 accepts a plain HTTP proxy request and carries it over an
// authenticated SOCKS5 upstream.
func (c *connContext) handleSOCKS5(conn net.Conn) {
	defer conn.Close()
	c.metrics.ConnectionAccepted(string(KindSOCKS5))
	logger := c.logger.With("remote", conn.RemoteAddr().String())

	br := bufio.NewReader(conn)
	head, err := readRequestHead(br)
	if err != nil {
		if !errors.Is(err, errEmptyRequest) {
			logger.Debug("read request failed", "error", err)
		}
		return
	}
	logger = logger.With("method", head.Method, "target", head.Target)

	var (
		host string
		port uint16
	)
	if head.isConnect() {
		host, port, err = parseConnectTarget(head.Target)
	} else {
		host, port, err = parseHTTPTarget(head.Target)
	}
	if err != nil {
		logger.Warn("invalid request target", "error", err)
		writeProxyError(conn, err.Error())
		return
	}

	upstream, err := c.dialUpstream()
	if err != nil {
		c.metrics.HandshakeFailed(string(KindSOCKS5))
		logger.Warn("upstream connect failed", "upstream", c.upstream.Address(), "error", err)
		writeProxyError(conn, "upstream proxy unreachable")
		return
	}
	defer upstream.Close()

	if err := upstream.SetDeadline(time.Now().Add(c.handshakeTimeout)); err != nil {
		logger.Debug("set deadline failed", "error", err)
		return
	}
	if err := socksHandshake(upstream, c.upstream.Username, c.upstream.Password, host, port); err != nil {
		c.recordSocksFailure(err)
		logger.Warn("socks5 handshake failed", "upstream", c.upstream.Address(), "error", err)
		writeProxyError(conn, err.Error())
		return
	}
	if err := upstream.SetDeadline(time.Time{}); err != nil {
		logger.Debug("clear deadline failed", "error", err)
		return
	}

	if head.isConnect() {
		if _, err := io.WriteString(conn, connectEstablished); err != nil {
			return
		}
		logger.Debug("tunnel established", "host", host, "port", port)
		pipe(conn, br, upstream, upstream, c.addSent, c.addReceived)
		return
	}

	if _, err := upstream.Write(encodeRelativeHead(head)); err != nil {
		logger.Debug("write request failed", "error", err)
		return
	}
	if n := contentLength(head.Headers); n > 0 {
		if _, err := io.CopyN(countingWriter{w: upstream, add: c.addSent}, br, n); err != nil {
			logger.Debug("forward request body failed", "error", err)
			return
		}
	}
	_, _ = io.Copy(countingWriter{w: conn, add: c.addReceived}, upstream)
}

func (c *connContext) recordSocksFailure(err error) {
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrAuthMethodsRejected) {
		c.metrics.UpstreamAuthFailed(string(KindSOCKS5))
		return
	}
	c.metrics.HandshakeFailed(string(KindSOCKS5))
}
