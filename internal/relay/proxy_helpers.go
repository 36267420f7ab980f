package relay

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

func basicAuthHeader(username, password string) string {
	return "Proxy-Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// encodeUpstreamHead replays the request head with the credential header placed
// directly after the request line.
func encodeUpstreamHead(head *requestHead, authHeader string) []byte {
	var buf bytes.Buffer
	buf.WriteString(head.Line)
	buf.WriteString("\r\n")
	buf.WriteString(authHeader)
	buf.WriteString("\r\n")
	for _, h := range head.Headers {
		buf.WriteString(h)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// encodeRelativeHead rewrites the head for a direct origin request over a SOCKS tunnel.
func encodeRelativeHead(head *requestHead) []byte {
	var buf bytes.Buffer
	buf.WriteString(relativeRequestLine(head))
	buf.WriteString("\r\n")
	for _, h := range headersWithout(head.Headers, headerProxyAuthorization, headerProxyConnection) {
		buf.WriteString(h)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func writeProxyError(w io.Writer, msg string) {
	_, _ = io.WriteString(w, "HTTP/1.1 502 Bad Gateway\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n")
	_, _ = io.WriteString(w, msg)
}

func splitHostPort(hostport string) (string, uint16, error) {
	h, p, err := net.SplitHostPort(strings.TrimSpace(hostport))
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(p, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid port %q", p)
	}
	if h == "" {
		return "", 0, fmt.Errorf("missing host in %q", hostport)
	}
	return h, uint16(port), nil
}
