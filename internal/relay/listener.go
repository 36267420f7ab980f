package relay

import (
	"errors"
	"log/slog"
	"net"
	"time"
)

const acceptRetryDelay = 50 * time.Millisecond

// serve runs the accept loop for h until the handle is stopped or the listener fails.
// Each accepted connection is handled on its own goroutine.
func (h *Handle) serve(logger *slog.Logger, handle func(net.Conn)) {
	h.started.Store(true)
	defer close(h.done)
	if h.stopped.Load() {
		return
	}

	for {
		conn, err := h.ln.Accept()
		if err != nil {
			if h.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(acceptRetryDelay)
				continue
			}
			logger.Warn("accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}
		if h.stopped.Load() {
			_ = conn.Close()
			return
		}
		go handle(conn)
	}
}
