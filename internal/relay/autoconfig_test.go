package relay

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAutoConfigServesActiveRelay(t *testing.T) {
	up := startUpstream(t, func(net.Conn) {})
	m := newTestManager(t)
	port, err := m.StartHTTP(up, "profile-pac")
	if err != nil {
		t.Fatal(err)
	}
	h := m.AutoConfigHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/autoconfig/profile-pac.pac", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ns-proxy-autoconfig" {
		t.Fatalf("content type = %q", ct)
	}
	want := fmt.Sprintf(`return "PROXY 127.0.0.1:%d";`, port)
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("pac = %s, want %s", rec.Body.String(), want)
	}

	for _, path := range []string{"/autoconfig/unknown.pac", "/autoconfig/profile-pac", "/autoconfig/"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: code = %d", path, rec.Code)
		}
	}

	m.Stop("profile-pac")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/autoconfig/profile-pac.pac", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stopped relay still served: %d", rec.Code)
	}
}

func TestGeneratePACBracketsIPv6(t *testing.T) {
	if pac := generatePAC("::1", 8080); !strings.Contains(pac, "PROXY [::1]:8080") {
		t.Fatalf("pac = %s", pac)
	}
}
