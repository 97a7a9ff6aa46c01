package security

import (
	"net/http"
	"time"

	"docchat/gateway/internal/config"
)

// CookiePolicy writes and clears the session cookie. The token itself is
// opaque; only the browser and the backend ever interpret it.
type CookiePolicy struct {
	Name   string
	Domain string
	Secure bool
}

func NewCookiePolicy(cfg *config.AppConfig) CookiePolicy {
	return CookiePolicy{
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.Domain,
		Secure: cfg.Production(),
	}
}

// Set stores token for ttl.
func (p CookiePolicy) Set(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, p.cookie(token, int(ttl/time.Second)))
}

// Clear expires the cookie immediately (Max-Age=0 on the wire).
func (p CookiePolicy) Clear(w http.ResponseWriter) {
	http.SetCookie(w, p.cookie("", -1))
}

// Token returns the session token carried by r, or "".
func (p CookiePolicy) Token(r *http.Request) string {
	c, err := r.Cookie(p.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (p CookiePolicy) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
