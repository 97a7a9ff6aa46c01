// Package cookiestore keeps the terminal client's cookies in a bbolt file so
// a session survives between invocations.
package cookiestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
	"golang.org/x/net/publicsuffix"
)

var bucketCookies = []byte("cookies")

// ErrLocked is returned by Open when another process holds the state file.
var ErrLocked = errors.New("state file is in use by another process")

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (s storedCookie) expired(now time.Time) bool {
	return !s.Expires.IsZero() && !s.Expires.After(now)
}

// Jar is an http.CookieJar whose contents are mirrored to disk. Matching
// rules come from net/http/cookiejar with the public suffix list.
type Jar struct {
	db  *bbolt.DB
	log zerolog.Logger
	now func() time.Time

	mu  sync.Mutex
	mem *cookiejar.Jar
}

// Open opens or creates the state file at path and loads every unexpired
// cookie from it.
func Open(path string, log zerolog.Logger) (*Jar, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("open %s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCookies)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cookie bucket: %w", err)
	}

	j := &Jar{db: db, log: log, now: time.Now}
	if err := j.load(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func newMemJar() *cookiejar.Jar {
	// cookiejar.New only fails on options it does not receive here
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

func (j *Jar) load() error {
	mem := newMemJar()
	now := j.now()

	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCookies).ForEach(func(k, v []byte) error {
			u, err := url.Parse(string(k))
			if err != nil {
				j.log.Warn().Err(err).Str("origin", string(k)).Msg("skipping unreadable cookie origin")
				return nil
			}
			var stored []storedCookie
			if err := json.Unmarshal(v, &stored); err != nil {
				j.log.Warn().Err(err).Str("origin", string(k)).Msg("skipping unreadable cookies")
				return nil
			}

			cookies := make([]*http.Cookie, 0, len(stored))
			for _, s := range stored {
				if s.expired(now) {
					continue
				}
				cookies = append(cookies, &http.Cookie{
					Name:     s.Name,
					Value:    s.Value,
					Path:     s.Path,
					Domain:   s.Domain,
					Expires:  s.Expires,
					Secure:   s.Secure,
					HttpOnly: s.HttpOnly,
				})
			}
			mem.SetCookies(u, cookies)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("load cookies: %w", err)
	}

	j.mu.Lock()
	j.mem = mem
	j.mu.Unlock()
	return nil
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mem.Cookies(u)
}

// SetCookies implements http.CookieJar. Persist failures are logged; the
// in-memory jar is updated regardless.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.mem.SetCookies(u, cookies)
	if err := j.persist(u, cookies); err != nil {
		j.log.Warn().Err(err).Str("host", u.Host).Msg("persist cookies failed")
	}
}

func (j *Jar) persist(u *url.URL, cookies []*http.Cookie) error {
	key := []byte(origin(u))
	now := j.now()

	return j.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCookies)

		var stored []storedCookie
		if raw := bucket.Get(key); raw != nil {
			if err := json.Unmarshal(raw, &stored); err != nil {
				return fmt.Errorf("decode cookies for %s: %w", key, err)
			}
		}

		for _, c := range cookies {
			stored = removeCookie(stored, c.Name, c.Path)
			s := storedCookie{
				Name:     c.Name,
				Value:    c.Value,
				Path:     c.Path,
				Domain:   c.Domain,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HttpOnly: c.HttpOnly,
			}
			switch {
			case c.MaxAge < 0:
				continue
			case c.MaxAge > 0:
				s.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
			}
			if s.expired(now) {
				continue
			}
			stored = append(stored, s)
		}

		if len(stored) == 0 {
			return bucket.Delete(key)
		}
		raw, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode cookies for %s: %w", key, err)
		}
		return bucket.Put(key, raw)
	})
}

func removeCookie(stored []storedCookie, name, path string) []storedCookie {
	kept := stored[:0]
	for _, s := range stored {
		if s.Name == name && s.Path == path {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// Clear forgets every cookie, on disk and in memory.
func (j *Jar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketCookies); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketCookies)
		return err
	})
	if err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	j.mem = newMemJar()
	return nil
}

func (j *Jar) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
