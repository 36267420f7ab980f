package relay

import (
	"io"
	"net"
	"sync"
)

// countingWriter reports every successfully written byte to add.
type countingWriter struct {
	w   io.Writer
	add func(int)
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 && c.add != nil {
		c.add(n)
	}
	return n, err
}

type halfCloser interface {
	CloseWrite() error
}

func closeWrite(c net.Conn) {
	if hc, ok := c.(halfCloser); ok {
		_ = hc.CloseWrite()
		return
	}
	_ = c.Close()
}

// pipe copies clientR to upstream and upstreamR to client until both directions end.
// The readers may be buffered views of the connections holding bytes already read
// past the request or response head.
func pipe(client net.Conn, clientR io.Reader, upstream net.Conn, upstreamR io.Reader, sent, received func(int)) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(countingWriter{w: upstream, add: sent}, clientR)
		closeWrite(upstream)
	}()

	_, _ = io.Copy(countingWriter{w: client, add: received}, upstreamR)
	closeWrite(client)
	wg.Wait()
}
