package relay

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// AutoConfigHandler serves /autoconfig/<session>.pac for every active relay,
// so a browser can be pointed at --proxy-pac-url instead of --proxy-server.
func (m *Manager) AutoConfigHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/autoconfig/")
		if path == "" || !strings.HasSuffix(path, ".pac") {
			http.NotFound(w, r)
			return
		}
		session := strings.TrimSuffix(path, ".pac")
		port, ok := m.registry.Active()[session]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/x-ns-proxy-autoconfig")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = io.WriteString(w, generatePAC(m.listenHost, port))
	})
}

// generatePAC routes everything except plain host names through the relay.
// Both relay kinds accept plain HTTP proxy requests, hence PROXY.
func generatePAC(host string, port uint16) string {
	return fmt.Sprintf(`function FindProxyForURL(url, host) {
  if (isPlainHostName(host)) {
    return "DIRECT";
  }
  return "PROXY %s";
}
`, net.JoinHostPort(host, strconv.Itoa(int(port))))
}
