package relay

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	maxHeadBytes = 64 << 10

	headerProxyAuthorization = "proxy-authorization"
	headerProxyConnection    = "proxy-connection"
)

var (
	errEmptyRequest    = errors.New("empty request")
	errHeadTooLarge    = errors.New("request head too large")
	errMalformedLine   = errors.New("malformed request line")
	errMissingPort     = errors.New("target missing port")
	errInvalidPort     = errors.New("invalid target port")
	errMissingHostname = errors.New("target missing host")
)

// requestHead is the request line plus header lines of a proxied request,
// kept verbatim (without line terminators) so they can be replayed upstream.
type requestHead struct {
	Line    string
	Method  string
	Target  string
	Proto   string
	Headers []string
}

func (h *requestHead) isConnect() bool {
	return strings.EqualFold(h.Method, "CONNECT")
}

// readRequestHead reads a request line and its header block. Client-supplied
// Proxy-Authorization headers are dropped while reading.
func readRequestHead(r *bufio.Reader) (*requestHead, error) {
	line, n, err := readLine(r, maxHeadBytes)
	if err != nil {
		if n == 0 {
			return nil, errEmptyRequest
		}
		return nil, fmt.Errorf("read request line: %w", err)
	}
	if line == "" {
		return nil, errEmptyRequest
	}
	head, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	total := n
	for {
		hl, hn, err := readLine(r, maxHeadBytes-total)
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		total += hn
		if hl == "" {
			break
		}
		if headerIs(hl, headerProxyAuthorization) {
			continue
		}
		head.Headers = append(head.Headers, hl)
	}
	return head, nil
}

// readLine reads one line of at most limit bytes, terminator included. It
// never buffers more than limit plus one bufio chunk.
func readLine(r *bufio.Reader, limit int) (string, int, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > limit {
			return "", len(line) + len(chunk), errHeadTooLarge
		}
		line = append(line, chunk...)
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err != nil:
			return "", len(line), err
		}
		return strings.TrimRight(string(line), "\r\n"), len(line), nil
	}
}

func parseRequestLine(line string) (*requestHead, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: %q", errMalformedLine, line)
	}
	return &requestHead{
		Line:   line,
		Method: parts[0],
		Target: parts[1],
		Proto:  strings.TrimSpace(parts[2]),
	}, nil
}

func headerIs(line, lowerName string) bool {
	name, _, ok := strings.Cut(line, ":")
	return ok && strings.EqualFold(strings.TrimSpace(name), lowerName)
}

// headersWithout returns the header lines whose names are not in names.
func headersWithout(headers []string, names ...string) []string {
	out := make([]string, 0, len(headers))
next:
	for _, h := range headers {
		for _, name := range names {
			if headerIs(h, name) {
				continue next
			}
		}
		out = append(out, h)
	}
	return out
}

// contentLength returns the declared body length, or 0 when absent or unparsable.
func contentLength(headers []string) int64 {
	for _, h := range headers {
		if !headerIs(h, "content-length") {
			continue
		}
		_, v, _ := strings.Cut(h, ":")
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// parseConnectTarget splits a CONNECT authority on its last colon.
func parseConnectTarget(authority string) (string, uint16, error) {
	idx := strings.LastIndexByte(authority, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("%w: %q", errMissingPort, authority)
	}
	host := trimBrackets(authority[:idx])
	if host == "" {
		return "", 0, fmt.Errorf("%w: %q", errMissingHostname, authority)
	}
	port, err := strconv.ParseUint(authority[idx+1:], 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("%w: %q", errInvalidPort, authority)
	}
	return host, uint16(port), nil
}

// parseHTTPTarget extracts host and port from an absolute-form request target.
// The port defaults to 80 when missing or unparsable.
func parseHTTPTarget(uri string) (string, uint16, error) {
	rest := uri
	if _, after, ok := strings.Cut(uri, "://"); ok {
		rest = after
	}
	hostPort := rest
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		hostPort = rest[:idx]
	}
	if at := strings.LastIndexByte(hostPort, '@'); at >= 0 {
		hostPort = hostPort[at+1:]
	}

	host, port := hostPort, uint16(80)
	if idx := strings.LastIndexByte(hostPort, ':'); idx >= 0 && !strings.HasSuffix(hostPort, "]") {
		host = hostPort[:idx]
		if p, err := strconv.ParseUint(hostPort[idx+1:], 10, 16); err == nil && p != 0 {
			port = uint16(p)
		}
	}
	host = trimBrackets(host)
	if host == "" {
		return "", 0, fmt.Errorf("%w: %q", errMissingHostname, uri)
	}
	return host, port, nil
}

// relativeRequestLine rewrites "GET http://host/path HTTP/1.1" to "GET /path HTTP/1.1".
func relativeRequestLine(h *requestHead) string {
	path := h.Target
	if _, after, ok := strings.Cut(h.Target, "://"); ok {
		if idx := strings.IndexAny(after, "/?"); idx >= 0 {
			path = after[idx:]
			if path[0] == '?' {
				path = "/" + path
			}
		} else {
			path = "/"
		}
	}
	return h.Method + " " + path + " " + h.Proto
}

// parseStatusCode reads the numeric code from an HTTP status line.
func parseStatusCode(line string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0, fmt.Errorf("malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed status code %q", parts[1])
	}
	return code, nil
}

func trimBrackets(host string) string {
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		return host[1 : len(host)-1]
	}
	return host
}

func targetAddress(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
