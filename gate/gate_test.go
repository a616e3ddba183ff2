package gate

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"rxcost/internal/config"
)

func newTestGate(t *testing.T, cfg config.GateConfig) *Gate {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func protectedHandler() (http.Handler, *bool) {
	reached := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}), &reached
}

func postLogin(t *testing.T, handler http.Handler, passcode string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"passcode": {passcode}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRedirectsWithoutSession(t *testing.T) {
	next, reached := protectedHandler()
	handler := newTestGate(t, config.GateConfig{Passcode: "open sesame", SessionSecret: "s"}).Wrap(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices?drug=metformin", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
	if *reached {
		t.Fatal("protected handler must not run without a session")
	}
}

func TestServesLoginForm(t *testing.T) {
	next, _ := protectedHandler()
	handler := newTestGate(t, config.GateConfig{Passcode: "open sesame", SessionSecret: "s"}).Wrap(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="passcode"`) {
		t.Fatal("expected a passcode form")
	}
	if strings.Contains(body, "not right") {
		t.Fatal("fresh form should carry no error message")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login?err=1", nil))
	if !strings.Contains(rec.Body.String(), "not right") {
		t.Fatal("expected an error message after a failed attempt")
	}
}

func TestLoginGrantsSession(t *testing.T) {
	next, reached := protectedHandler()
	handler := newTestGate(t, config.GateConfig{Passcode: "open sesame", SessionSecret: "s"}).Wrap(next)

	rec := postLogin(t, handler, "open sesame")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect home, got %q", loc)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != cookieName {
		t.Fatalf("expected a session cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatal("session cookie must be http-only")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/prices?drug=metformin", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*reached {
		t.Fatalf("expected the session to pass through, got %d", rec.Code)
	}
}

func TestLoginRejectsWrongPasscode(t *testing.T) {
	next, reached := protectedHandler()
	handler := newTestGate(t, config.GateConfig{Passcode: "open sesame", SessionSecret: "s"}).Wrap(next)

	rec := postLogin(t, handler, "guess")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?err=1" {
		t.Fatalf("expected redirect back with error, got %q", loc)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("failed login must not set a cookie")
	}
	if *reached {
		t.Fatal("protected handler must not run")
	}
}

func TestLoginEmptyPasscodeAlwaysFails(t *testing.T) {
	next, _ := protectedHandler()
	handler := newTestGate(t, config.GateConfig{Passcode: "open sesame", SessionSecret: "s"}).Wrap(next)

	rec := postLogin(t, handler, "")
	if loc := rec.Header().Get("Location"); loc != "/login?err=1" {
		t.Fatalf("expected redirect back with error, got %q", loc)
	}
}

func TestLoginVerifiesBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	next, _ := protectedHandler()
	handler := newTestGate(t, config.GateConfig{PasscodeHash: string(hash), SessionSecret: "s"}).Wrap(next)

	if rec := postLogin(t, handler, "open sesame"); rec.Header().Get("Location") != "/" {
		t.Fatalf("hashed passcode should verify, got %q", rec.Header().Get("Location"))
	}
	if rec := postLogin(t, handler, "guess"); rec.Header().Get("Location") != "/login?err=1" {
		t.Fatal("wrong passcode should fail against the hash")
	}
}

func TestHashWinsOverPlainPasscode(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	g := newTestGate(t, config.GateConfig{Passcode: "plain", PasscodeHash: string(hash), SessionSecret: "s"})

	if g.verify("plain") {
		t.Fatal("plain passcode must be ignored when a hash is configured")
	}
	if !g.verify("hashed") {
		t.Fatal("hash should verify")
	}
}

func TestTamperedCookieRedirects(t *testing.T) {
	next, reached := protectedHandler()
	handler := newTestGate(t, config.GateConfig{Passcode: "open sesame", SessionSecret: "s"}).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "not.a.jwt"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || *reached {
		t.Fatalf("tampered cookie must redirect, got %d", rec.Code)
	}
}

func TestForeignSecretRejected(t *testing.T) {
	issuer := newTestGate(t, config.GateConfig{Passcode: "p", SessionSecret: "one"})
	token, err := issuer.issueToken()
	if err != nil {
		t.Fatal(err)
	}

	next, reached := protectedHandler()
	handler := newTestGate(t, config.GateConfig{Passcode: "p", SessionSecret: "two"}).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || *reached {
		t.Fatal("token signed with a different secret must not pass")
	}
}

func TestExpiredSessionRedirects(t *testing.T) {
	g := newTestGate(t, config.GateConfig{Passcode: "p", SessionSecret: "s", SessionTTLHours: 1})
	g.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := g.issueToken()
	if err != nil {
		t.Fatal(err)
	}
	g.now = time.Now

	if got := g.parseToken(token); got != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", got)
	}

	next, reached := protectedHandler()
	handler := g.Wrap(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || *reached {
		t.Fatal("expired session must redirect to login")
	}
}

func TestGeneratesSecretWhenUnset(t *testing.T) {
	g := newTestGate(t, config.GateConfig{Passcode: "p"})
	if len(g.secret) == 0 {
		t.Fatal("expected a generated secret")
	}
	token, err := g.issueToken()
	if err != nil {
		t.Fatal(err)
	}
	if err := g.parseToken(token); err != nil {
		t.Fatalf("self-issued token should verify: %v", err)
	}
}
