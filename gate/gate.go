// Package gate is the passcode front door. It sits outside every route
// and knows nothing about pricing: without a valid session cookie all
// traffic redirects to a login form, with one it passes straight through.
package gate

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"rxcost/internal/config"
	"rxcost/internal/logging"
)

// Session validation errors.
var (
	// ErrInvalidToken indicates a session token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrExpiredToken indicates a session token has expired.
	ErrExpiredToken = errors.New("session expired")
)

const (
	cookieName   = "rxcost_session"
	loginPath    = "/login"
	maxLoginBody = 64 << 10
)

// sessionClaims is the JWT payload of a beta session.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// Gate verifies passcodes and session cookies.
type Gate struct {
	passcode     string
	passcodeHash string
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// New builds a gate from the access configuration. When no session secret
// is configured a random per-process one is generated, which logs everyone
// out on restart.
func New(cfg config.GateConfig) (*Gate, error) {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		logging.Warn("no session secret configured; sessions will not survive a restart")
	}

	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}

	return &Gate{
		passcode:     cfg.Passcode,
		passcodeHash: cfg.PasscodeHash,
		secret:       secret,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// Wrap mounts the gate around a handler.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			switch r.Method {
			case http.MethodGet:
				g.serveLoginForm(w, r)
			case http.MethodPost:
				g.handleLogin(w, r)
			default:
				w.Header().Set("Allow", "GET, POST")
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		cookie, err := r.Cookie(cookieName)
		if err != nil || g.parseToken(cookie.Value) != nil {
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gate) serveLoginForm(w http.ResponseWriter, r *http.Request) {
	message := ""
	if r.URL.Query().Get("err") != "" {
		message = `<p class="error">That passcode is not right.</p>`
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprintf(w, loginPage, message)
}

func (g *Gate) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBody)
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, loginPath+"?err=1", http.StatusSeeOther)
		return
	}

	if !g.verify(r.PostForm.Get("passcode")) {
		logging.Warn("rejected login attempt")
		http.Redirect(w, r, loginPath+"?err=1", http.StatusSeeOther)
		return
	}

	token, err := g.issueToken()
	if err != nil {
		logging.Error("failed to issue session token")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		Expires:  g.now().Add(g.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// verify checks a submitted passcode. A configured bcrypt hash wins over
// the plain passcode; the plain comparison is constant time.
func (g *Gate) verify(submitted string) bool {
	if submitted == "" {
		return false
	}
	if g.passcodeHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(g.passcodeHash), []byte(submitted)) == nil
	}
	if g.passcode == "" {
		return false
	}
	want := sha256.Sum256([]byte(g.passcode))
	got := sha256.Sum256([]byte(submitted))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

// issueToken signs a session JWT with the configured expiry.
func (g *Gate) issueToken() (string, error) {
	now := g.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "beta",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

// parseToken validates a session JWT.
func (g *Gate) parseToken(raw string) error {
	token, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return g.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

const loginPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>rxcost beta</title>
<style>
body { font-family: system-ui, sans-serif; display: flex; justify-content: center; margin-top: 15vh; }
form { display: flex; flex-direction: column; gap: 0.75rem; width: 18rem; }
input, button { padding: 0.5rem; font-size: 1rem; }
.error { color: #b00020; }
</style>
</head>
<body>
<form method="post" action="/login">
<h1>rxcost beta</h1>
%s
<input type="password" name="passcode" placeholder="Passcode" autofocus required>
<button type="submit">Enter</button>
</form>
</body>
</html>
`
