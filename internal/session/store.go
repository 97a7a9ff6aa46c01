// Package session keeps the client-side view of who is logged in. All state
// changes go through one reducer, one operation at a time, and are published
// to subscribers as immutable snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"docchat/gateway/pkg/api"
)

var (
	// ErrSessionExpired is returned when the gateway no longer accepts the
	// session; the user has to log in again.
	ErrSessionExpired = errors.New("session expired, please log in again")
	// ErrNotInitialized is returned by session-scoped calls made before the
	// first user fetch resolved.
	ErrNotInitialized = errors.New("auth state not initialized")
)

// API is the part of the gateway the store drives. *Client implements it.
type API interface {
	Me(ctx context.Context) (*api.User, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	Signup(ctx context.Context, req api.SignupRequest) (*api.TokenResponse, error)
	Logout(ctx context.Context) (*api.LogoutResponse, error)
	Refresh(ctx context.Context) (*api.TokenResponse, error)
	UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*api.UserProfileResponse, error)
}

type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

// State is one snapshot of the store.
type State struct {
	User          *api.User
	IsLoading     bool
	IsInitialized bool
}

func (s State) Phase() Phase {
	switch {
	case !s.IsInitialized && s.IsLoading:
		return PhaseInitializing
	case !s.IsInitialized:
		return PhaseUninitialized
	case s.User != nil:
		return PhaseAuthenticated
	default:
		return PhaseAnonymous
	}
}

type action int

const (
	actionStarted action = iota
	actionUserSet
	actionCleared
)

type event struct {
	action action
	user   *api.User
	// settles marks the event that resolves a user fetch.
	settles bool
}

// reduce is the only place state changes. IsInitialized never goes back to
// false.
func reduce(s State, e event) State {
	switch e.action {
	case actionStarted:
		s.IsLoading = true
	case actionUserSet:
		s.User = e.user
		s.IsLoading = false
	case actionCleared:
		s.User = nil
		s.IsLoading = false
	}
	if e.settles {
		s.IsInitialized = true
	}
	return s
}

type Store struct {
	client API
	log    zerolog.Logger

	// slot admits one operation at a time.
	slot chan struct{}

	mu     sync.RWMutex
	state  State
	subs   map[int]chan State
	nextID int

	initOnce sync.Once
}

func NewStore(client API, log zerolog.Logger) *Store {
	return &Store{
		client: client,
		log:    log,
		slot:   make(chan struct{}, 1),
		subs:   make(map[int]chan State),
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.state)
}

// Subscribe returns a channel of snapshots and a cancel func that closes it.
// A slow subscriber misses intermediate snapshots but always gets the latest.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, 1)
	ch <- snapshot(s.state)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Store) dispatch(e event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = reduce(s.state, e)
	current := snapshot(s.state)
	for _, ch := range s.subs {
		select {
		case ch <- current:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- current
		}
	}
}

func snapshot(s State) State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.slot
}

// Init performs the mount-time user fetch. Only the first call does work.
func (s *Store) Init(ctx context.Context) {
	s.initOnce.Do(func() {
		if err := s.FetchUser(ctx); err != nil {
			s.log.Debug().Err(err).Msg("initial user fetch abandoned")
		}
	})
}

// FetchUser loads the current user. Any failure, 401 included, leaves the
// store anonymous without an error; the only error is a ctx that ends before
// the operation could start. Either way the store is initialized afterwards.
func (s *Store) FetchUser(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		s.dispatch(event{action: actionCleared, settles: true})
		return err
	}
	defer s.release()

	s.dispatch(event{action: actionStarted})
	user, err := s.client.Me(ctx)
	if err != nil {
		if api.KindOf(err) != api.KindMissingSession && statusOf(err) != http.StatusUnauthorized {
			s.log.Warn().Err(err).Msg("fetch user failed")
		}
		s.dispatch(event{action: actionCleared, settles: true})
		return nil
	}

	s.dispatch(event{action: actionUserSet, user: user, settles: true})
	return nil
}

func (s *Store) Login(ctx context.Context, email, password string) (*api.User, error) {
	return s.authenticate(ctx, "login", func(ctx context.Context) (*api.TokenResponse, error) {
		return s.client.Login(ctx, api.LoginRequest{Email: email, Password: password})
	})
}

func (s *Store) Signup(ctx context.Context, username, email, password string) (*api.User, error) {
	return s.authenticate(ctx, "signup", func(ctx context.Context) (*api.TokenResponse, error) {
		return s.client.Signup(ctx, api.SignupRequest{Username: username, Email: email, Password: password})
	})
}

// RefreshSession renews the cookie. A 401 yields an error wrapping
// ErrSessionExpired; every failure leaves the store anonymous.
func (s *Store) RefreshSession(ctx context.Context) (*api.User, error) {
	user, err := s.authenticate(ctx, "refresh", s.client.Refresh)
	if err != nil && statusOf(err) == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return user, err
}

// Logout never fails: the backend call is best effort and local state is
// cleared whatever happens.
func (s *Store) Logout(ctx context.Context) {
	if err := s.acquire(ctx); err != nil {
		s.log.Warn().Err(err).Msg("logout without backend call")
		s.dispatch(event{action: actionCleared})
		return
	}
	defer s.release()

	s.dispatch(event{action: actionStarted})
	if _, err := s.client.Logout(ctx); err != nil {
		s.log.Warn().Err(err).Msg("backend logout failed, clearing local state anyway")
	}
	s.dispatch(event{action: actionCleared})
}

func (s *Store) authenticate(ctx context.Context, op string, call func(context.Context) (*api.TokenResponse, error)) (*api.User, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	s.dispatch(event{action: actionStarted})
	resp, err := call(ctx)
	if err != nil {
		s.dispatch(event{action: actionCleared})
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &resp.User
	if user.ID == "" {
		// token answers without an embedded user fall back to /me
		user, err = s.client.Me(ctx)
		if err != nil {
			s.dispatch(event{action: actionCleared})
			return nil, fmt.Errorf("%s: load user: %w", op, err)
		}
	}

	s.dispatch(event{action: actionUserSet, user: user})
	return snapshot(State{User: user}).User, nil
}

func statusOf(err error) int {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
