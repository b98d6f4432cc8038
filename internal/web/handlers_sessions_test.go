package web

import (
	"net/http"
	"strings"
	"testing"
)

func createSession(t *testing.T, env *testEnv, body string) sessionResponse {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/sessions", body)
	expectStatus(t, rr, http.StatusCreated)
	var resp sessionResponse
	decodeJSON(t, rr, &resp)
	return resp
}

func TestCreateAndListSessions(t *testing.T) {
	env := newTestEnv(t, Config{})

	first := createSession(t, env, `{"cwd":"/srv/api"}`)
	if first.Title != "api" || !first.Active {
		t.Fatalf("unexpected created session: %+v", first)
	}
	second := createSession(t, env, "")
	if second.Title != "Terminal" {
		t.Fatalf("expected default title, got %q", second.Title)
	}

	rr := env.do(t, http.MethodGet, "/api/sessions", "")
	expectStatus(t, rr, http.StatusOK)
	var list sessionsResponse
	decodeJSON(t, rr, &list)

	if len(list.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list.Sessions))
	}
	if list.Sessions[0].ID != first.ID || list.Sessions[1].ID != second.ID {
		t.Fatal("sessions not in creation order")
	}
	if list.ActiveID != second.ID || !list.Sessions[1].Active || list.Sessions[0].Active {
		t.Fatalf("expected the newest session active, got %+v", list)
	}
	if !strings.Contains(rr.Body.String(), `"pin":"auto"`) {
		t.Fatalf("expected pin rendered as text, got %s", rr.Body.String())
	}
}

func TestCreateSessionRejectsBadJSON(t *testing.T) {
	env := newTestEnv(t, Config{})
	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions", `{"cwd":`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions", `{"bogus":1}`), http.StatusBadRequest)
}

func TestRenamePinsSession(t *testing.T) {
	env := newTestEnv(t, Config{})
	s := createSession(t, env, "")

	rr := env.do(t, http.MethodPatch, "/api/sessions/"+s.ID, `{"title":"deploy"}`)
	expectStatus(t, rr, http.StatusOK)
	var got sessionResponse
	decodeJSON(t, rr, &got)
	if got.Title != "deploy" || got.Pin.String() != "pinned" {
		t.Fatalf("expected pinned rename, got %+v", got)
	}

	expectStatus(t, env.do(t, http.MethodPatch, "/api/sessions/missing", `{"title":"x"}`), http.StatusNotFound)
}

func TestCloseLastSessionKeepsOne(t *testing.T) {
	env := newTestEnv(t, Config{})
	s := createSession(t, env, "")

	rr := env.do(t, http.MethodDelete, "/api/sessions/"+s.ID, "")
	expectStatus(t, rr, http.StatusOK)
	var list sessionsResponse
	decodeJSON(t, rr, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID == s.ID {
		t.Fatalf("expected one replacement session, got %+v", list.Sessions)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/sessions/"+s.ID, ""), http.StatusNotFound)
}

func TestActivateSession(t *testing.T) {
	env := newTestEnv(t, Config{})
	first := createSession(t, env, "")
	createSession(t, env, "")

	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions/"+first.ID+"/activate", ""), http.StatusNoContent)
	if a, _ := env.deck.Active(); a.ID != first.ID {
		t.Fatalf("expected %s active, got %s", first.ID, a.ID)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions/nope/activate", ""), http.StatusNotFound)
}

func TestSessionInputAndResize(t *testing.T) {
	env := newTestEnv(t, Config{})
	s := createSession(t, env, "")

	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/input", `{"data":"ls -la","command":true}`), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/input", `{"data":"\u0003"}`), http.StatusNoContent)
	got := env.terms.get(s.ID).inputs()
	if len(got) != 2 || got[0] != "ls -la\r" || got[1] != "\x03" {
		t.Fatalf("unexpected terminal input: %q", got)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/resize", `{"cols":132,"rows":43}`), http.StatusNoContent)
	if size := env.terms.get(s.ID).size; size != [2]uint16{132, 43} {
		t.Fatalf("unexpected size %v", size)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/resize", `{"cols":0,"rows":43}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/sessions/nope/input", `{"data":"x"}`), http.StatusNotFound)
}

func TestSessionPreview(t *testing.T) {
	env := newTestEnv(t, Config{})
	s := createSession(t, env, "")
	env.terms.get(s.ID).emit("\x1b[31mred\x1b[0m output\n")

	rr := env.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/preview", "")
	expectStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "red output\n" {
		t.Fatalf("expected sanitized preview, got %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/preview?bytes=7", "")
	expectStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "output\n" {
		t.Fatalf("expected last bytes only, got %q", rr.Body.String())
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/preview?bytes=-1", ""), http.StatusBadRequest)
}

func TestDropPaths(t *testing.T) {
	env := newTestEnv(t, Config{})
	expectStatus(t, env.do(t, http.MethodPost, "/api/drop", `{"paths":["/tmp/x"]}`), http.StatusUnprocessableEntity)

	s := createSession(t, env, "")
	expectStatus(t, env.do(t, http.MethodPost, "/api/drop", `{"paths":["/tmp/a b","/etc/hosts"]}`), http.StatusNoContent)
	got := env.terms.get(s.ID).inputs()
	if len(got) != 1 || got[0] != "'/tmp/a b' /etc/hosts" {
		t.Fatalf("unexpected dropped input: %q", got)
	}
}
