package relay

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseConnectTarget(t *testing.T) {
	cases := []struct {
		in      string
		host    string
		port    uint16
		wantErr error
	}{
		{in: "example.com:443", host: "example.com", port: 443},
		{in: "10.0.0.1:8443", host: "10.0.0.1", port: 8443},
		{in: "[2001:db8::1]:443", host: "2001:db8::1", port: 443},
		{in: "example.com", wantErr: errMissingPort},
		{in: "example.com:http", wantErr: errInvalidPort},
		{in: "example.com:70000", wantErr: errInvalidPort},
		{in: ":443", wantErr: errMissingHostname},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			host, port, err := parseConnectTarget(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tc.host || port != tc.port {
				t.Fatalf("got %s:%d, want %s:%d", host, port, tc.host, tc.port)
			}
		})
	}
}

func TestParseHTTPTarget(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port uint16
	}{
		{in: "http://example.com/path", host: "example.com", port: 80},
		{in: "http://example.com:8080/path?q=1", host: "example.com", port: 8080},
		{in: "http://example.com", host: "example.com", port: 80},
		{in: "http://example.com?x=1", host: "example.com", port: 80},
		{in: "http://user:pw@example.com:81/", host: "example.com", port: 81},
		{in: "http://[::1]:9000/x", host: "::1", port: 9000},
		{in: "http://[::1]/x", host: "::1", port: 80},
		{in: "example.com:8000/x", host: "example.com", port: 8000},
		{in: "http://example.com:bad/", host: "example.com", port: 80},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			host, port, err := parseHTTPTarget(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tc.host || port != tc.port {
				t.Fatalf("got %s:%d, want %s:%d", host, port, tc.host, tc.port)
			}
		})
	}

	if _, _, err := parseHTTPTarget("http:///path"); !errors.Is(err, errMissingHostname) {
		t.Fatalf("expected missing host error, got %v", err)
	}
}

func TestRelativeRequestLine(t *testing.T) {
	cases := map[string]string{
		"GET http://example.com/a/b?c=d HTTP/1.1": "GET /a/b?c=d HTTP/1.1",
		"GET http://example.com HTTP/1.1":         "GET / HTTP/1.1",
		"GET http://example.com?x=1 HTTP/1.0":     "GET /?x=1 HTTP/1.0",
		"POST /already/relative HTTP/1.1":         "POST /already/relative HTTP/1.1",
	}
	for in, want := range cases {
		head, err := parseRequestLine(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got := relativeRequestLine(head); got != want {
			t.Errorf("relativeRequestLine(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadRequestHeadStripsClientCredentials(t *testing.T) {
	raw := "CONNECT example.com:443 HTTP/1.1\r\n" +
		"Host: example.com:443\r\n" +
		"proxy-authorization: Basic Zm9vOmJhcg==\r\n" +
		"User-Agent: test\r\n" +
		"\r\n" +
		"leftover"
	br := bufio.NewReader(strings.NewReader(raw))
	head, err := readRequestHead(br)
	if err != nil {
		t.Fatalf("read head: %v", err)
	}
	if !head.isConnect() || head.Target != "example.com:443" || head.Proto != "HTTP/1.1" {
		t.Fatalf("unexpected head %+v", head)
	}
	if len(head.Headers) != 2 {
		t.Fatalf("headers = %q", head.Headers)
	}
	for _, h := range head.Headers {
		if strings.HasPrefix(strings.ToLower(h), "proxy-authorization") {
			t.Fatalf("client credentials leaked: %q", h)
		}
	}
	rest, _ := br.ReadString(0)
	if rest != "leftover" {
		t.Fatalf("bytes after head consumed: %q", rest)
	}
}

func TestReadRequestHeadErrors(t *testing.T) {
	if _, err := readRequestHead(bufio.NewReader(strings.NewReader(""))); !errors.Is(err, errEmptyRequest) {
		t.Fatalf("empty input: %v", err)
	}
	if _, err := readRequestHead(bufio.NewReader(strings.NewReader("GARBAGE\r\n\r\n"))); !errors.Is(err, errMalformedLine) {
		t.Fatalf("malformed line: %v", err)
	}
	huge := "GET http://x/ HTTP/1.1\r\nX-Big: " + strings.Repeat("a", maxHeadBytes) + "\r\n\r\n"
	if _, err := readRequestHead(bufio.NewReader(strings.NewReader(huge))); !errors.Is(err, errHeadTooLarge) {
		t.Fatalf("oversized head: %v", err)
	}
}

// countingReader reports how many bytes the head parser pulled from the client.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestReadRequestHeadStopsOnUnterminatedLine(t *testing.T) {
	endless := io.MultiReader(strings.NewReader("GET http://x/ HTTP/1.1\r\nX-Big: "), neverEnding('a'))
	src := &countingReader{r: endless}
	_, err := readRequestHead(bufio.NewReader(src))
	if !errors.Is(err, errHeadTooLarge) {
		t.Fatalf("err = %v, want errHeadTooLarge", err)
	}
	if src.n > 2*maxHeadBytes {
		t.Fatalf("read %d bytes before giving up", src.n)
	}

	_, err = readRequestHead(bufio.NewReader(neverEnding('G')))
	if !errors.Is(err, errHeadTooLarge) {
		t.Fatalf("request line: err = %v, want errHeadTooLarge", err)
	}
}

type neverEnding byte

func (b neverEnding) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(b)
	}
	return len(p), nil
}

func TestContentLength(t *testing.T) {
	if n := contentLength([]string{"Host: x", "content-length: 42"}); n != 42 {
		t.Fatalf("got %d", n)
	}
	if n := contentLength([]string{"Content-Length: nope"}); n != 0 {
		t.Fatalf("got %d", n)
	}
	if n := contentLength(nil); n != 0 {
		t.Fatalf("got %d", n)
	}
}

func TestEncodeUpstreamHeadPutsAuthFirst(t *testing.T) {
	head := &requestHead{
		Line:    "CONNECT target.com:443 HTTP/1.1",
		Method:  "CONNECT",
		Target:  "target.com:443",
		Proto:   "HTTP/1.1",
		Headers: []string{"Host: target.com:443"},
	}
	got := string(encodeUpstreamHead(head, basicAuthHeader("alice", "secret")))
	want := "CONNECT target.com:443 HTTP/1.1\r\n" +
		"Proxy-Authorization: Basic YWxpY2U6c2VjcmV0\r\n" +
		"Host: target.com:443\r\n\r\n"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestEncodeRelativeHeadDropsProxyHeaders(t *testing.T) {
	head := &requestHead{
		Line:    "GET http://example.com/x HTTP/1.1",
		Method:  "GET",
		Target:  "http://example.com/x",
		Proto:   "HTTP/1.1",
		Headers: []string{"Host: example.com", "Proxy-Connection: keep-alive", "Accept: */*"},
	}
	got := string(encodeRelativeHead(head))
	want := "GET /x HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestParseStatusCode(t *testing.T) {
	if code, err := parseStatusCode("HTTP/1.1 407 Proxy Authentication Required\r\n"); err != nil || code != 407 {
		t.Fatalf("got %d %v", code, err)
	}
	if _, err := parseStatusCode("SSH-2.0-OpenSSH\r\n"); err == nil {
		t.Fatal("expected error for non-HTTP status")
	}
}

func FuzzParseHTTPTarget(f *testing.F) {
	f.Add("http://example.com:8080/path")
	f.Add("[::1]:80")
	f.Add("://")
	f.Fuzz(func(t *testing.T, uri string) {
		host, _, err := parseHTTPTarget(uri)
		if err == nil && host == "" {
			t.Fatalf("empty host accepted for %q", uri)
		}
	})
}

func FuzzReadRequestHead(f *testing.F) {
	f.Add([]byte("CONNECT a:1 HTTP/1.1\r\nProxy-Authorization: x\r\n\r\n"))
	f.Add([]byte("GET http://a/ HTTP/1.0\n\n"))
	f.Fuzz(func(t *testing.T, data []byte) {
		head, err := readRequestHead(bufio.NewReader(strings.NewReader(string(data))))
		if err != nil {
			return
		}
		for _, h := range head.Headers {
			if headerIs(h, headerProxyAuthorization) {
				t.Fatalf("proxy-authorization survived: %q", h)
			}
		}
	})
}
