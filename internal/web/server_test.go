package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthzEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{ListenAddr: "127.0.0.1:0", Version: "1.2.3"})

	rr := env.do(t, http.MethodGet, "/healthz", "")
	expectStatus(t, rr, http.StatusOK)

	body := rr.Body.String()
	if !strings.Contains(body, `"ok":true`) {
		t.Fatalf("expected health response to contain ok=true, got: %s", body)
	}
	if !strings.Contains(body, `"version":"1.2.3"`) {
		t.Fatalf("expected health response to contain version, got: %s", body)
	}
}

func TestHealthzMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, Config{})
	expectStatus(t, env.do(t, http.MethodPost, "/healthz", ""), http.StatusMethodNotAllowed)
}

func TestHealthzSkipsAuth(t *testing.T) {
	env := newTestEnv(t, Config{Token: "secret"})
	expectStatus(t, env.do(t, http.MethodGet, "/healthz", ""), http.StatusOK)
}

func TestDefaultListenAddr(t *testing.T) {
	env := newTestEnv(t, Config{})
	if env.srv.Addr() != DefaultListenAddr {
		t.Fatalf("expected %s, got %s", DefaultListenAddr, env.srv.Addr())
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t, Config{Token: "secret-token"})

	rr := env.do(t, http.MethodGet, "/api/sessions", "")
	expectStatus(t, rr, http.StatusUnauthorized)
	if !strings.Contains(rr.Body.String(), "UNAUTHORIZED") {
		t.Fatalf("expected UNAUTHORIZED code, got: %s", rr.Body.String())
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/sessions?token=wrong", ""), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodGet, "/api/sessions?token=secret-token", ""), http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusOK)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"Bearer abc":       "abc",
		"  Bearer  abc  ":  "abc",
		"Basic abc":        "",
		"Bearer ":          "",
		"bearer lowercase": "",
	}
	for header, want := range tests {
		if got := bearerToken(header); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestWithRecover(t *testing.T) {
	handler := withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	expectStatus(t, rr, http.StatusInternalServerError)
}
