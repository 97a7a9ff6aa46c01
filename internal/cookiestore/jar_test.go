package cookiestore

import (
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJar(t *testing.T, path string) *Jar {
	t.Helper()
	jar, err := Open(path, zerolog.New(io.Discard))
	require.NoError(t, err)
	return jar
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func names(cookies []*http.Cookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}

func TestJarSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	gateway := mustURL(t, "http://127.0.0.1:3000/api/auth/login")

	jar := openTestJar(t, path)
	jar.SetCookies(gateway, []*http.Cookie{
		{Name: "access_token", Value: "tok", Path: "/", MaxAge: 3600, HttpOnly: true},
	})
	require.NoError(t, jar.Close())

	jar = openTestJar(t, path)
	defer jar.Close()

	got := jar.Cookies(mustURL(t, "http://127.0.0.1:3000/api/documents"))
	assert.Equal(t, map[string]string{"access_token": "tok"}, names(got))
}

func TestJarDropsClearedCookie(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	gateway := mustURL(t, "http://localhost:3000/api/auth/logout")

	jar := openTestJar(t, path)
	jar.SetCookies(gateway, []*http.Cookie{{Name: "access_token", Value: "tok", Path: "/", MaxAge: 3600}})
	jar.SetCookies(gateway, []*http.Cookie{{Name: "access_token", Value: "", Path: "/", MaxAge: -1}})
	assert.Empty(t, jar.Cookies(gateway))
	require.NoError(t, jar.Close())

	jar = openTestJar(t, path)
	defer jar.Close()
	assert.Empty(t, jar.Cookies(gateway))
}

func TestJarSkipsExpiredOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	gateway := mustURL(t, "http://localhost:3000/")

	jar := openTestJar(t, path)
	jar.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	jar.SetCookies(gateway, []*http.Cookie{
		{Name: "access_token", Value: "old", Path: "/", MaxAge: 3600},
		{Name: "theme", Value: "dark", Path: "/", MaxAge: 86400},
	})
	require.NoError(t, jar.Close())

	jar = openTestJar(t, path)
	defer jar.Close()
	assert.Equal(t, map[string]string{"theme": "dark"}, names(jar.Cookies(gateway)))
}

func TestJarReplacesCookieValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	gateway := mustURL(t, "http://localhost:3000/")

	jar := openTestJar(t, path)
	jar.SetCookies(gateway, []*http.Cookie{{Name: "access_token", Value: "one", Path: "/", MaxAge: 60}})
	jar.SetCookies(gateway, []*http.Cookie{{Name: "access_token", Value: "two", Path: "/", MaxAge: 60}})
	require.NoError(t, jar.Close())

	jar = openTestJar(t, path)
	defer jar.Close()
	assert.Equal(t, map[string]string{"access_token": "two"}, names(jar.Cookies(gateway)))
}

func TestJarClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	gateway := mustURL(t, "http://localhost:3000/")

	jar := openTestJar(t, path)
	jar.SetCookies(gateway, []*http.Cookie{{Name: "access_token", Value: "tok", Path: "/", MaxAge: 60}})
	require.NoError(t, jar.Clear())
	assert.Empty(t, jar.Cookies(gateway))
	require.NoError(t, jar.Close())

	jar = openTestJar(t, path)
	defer jar.Close()
	assert.Empty(t, jar.Cookies(gateway))
}

func TestJarIsolatesOrigins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	jar := openTestJar(t, path)
	defer jar.Close()
	jar.SetCookies(mustURL(t, "http://localhost:3000/"), []*http.Cookie{{Name: "access_token", Value: "a", Path: "/", MaxAge: 60}})

	assert.Empty(t, jar.Cookies(mustURL(t, "http://example.com/")))
}

func TestOpenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	jar := openTestJar(t, path)
	defer jar.Close()

	_, err := Open(path, zerolog.New(io.Discard))
	assert.ErrorIs(t, err, ErrLocked)
}
