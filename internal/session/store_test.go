package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/gateway/pkg/api"
)

var alice = api.User{ID: "u1", Username: "alice", Email: "a@example.com", Profile: map[string]any{}, CreatedAt: "2024-01-01"}

type fakeAPI struct {
	me            func(ctx context.Context) (*api.User, error)
	login         func(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	signup        func(ctx context.Context, req api.SignupRequest) (*api.TokenResponse, error)
	logout        func(ctx context.Context) (*api.LogoutResponse, error)
	refresh       func(ctx context.Context) (*api.TokenResponse, error)
	updateProfile func(ctx context.Context, req api.UpdateProfileRequest) (*api.UserProfileResponse, error)

	meCalls     atomic.Int32
	logoutCalls atomic.Int32
}

func (f *fakeAPI) Me(ctx context.Context) (*api.User, error) {
	f.meCalls.Add(1)
	if f.me == nil {
		return nil, api.NewError(http.StatusUnauthorized, []byte(`{"detail":"Authentication required"}`))
	}
	return f.me(ctx)
}

func (f *fakeAPI) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	return f.login(ctx, req)
}

func (f *fakeAPI) Signup(ctx context.Context, req api.SignupRequest) (*api.TokenResponse, error) {
	return f.signup(ctx, req)
}

func (f *fakeAPI) Logout(ctx context.Context) (*api.LogoutResponse, error) {
	f.logoutCalls.Add(1)
	if f.logout == nil {
		return &api.LogoutResponse{Message: "Logged out"}, nil
	}
	return f.logout(ctx)
}

func (f *fakeAPI) Refresh(ctx context.Context) (*api.TokenResponse, error) {
	return f.refresh(ctx)
}

func (f *fakeAPI) UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*api.UserProfileResponse, error) {
	return f.updateProfile(ctx, req)
}

func newTestStore(client API) *Store {
	return NewStore(client, zerolog.New(io.Discard))
}

func tokenFor(user api.User) *api.TokenResponse {
	return &api.TokenResponse{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 3600, User: user}
}

func TestReduce(t *testing.T) {
	user := alice
	s := State{}
	assert.Equal(t, PhaseUninitialized, s.Phase())

	s = reduce(s, event{action: actionStarted})
	assert.Equal(t, PhaseInitializing, s.Phase())

	s = reduce(s, event{action: actionUserSet, user: &user, settles: true})
	assert.Equal(t, PhaseAuthenticated, s.Phase())
	assert.False(t, s.IsLoading)

	s = reduce(s, event{action: actionCleared})
	assert.Equal(t, PhaseAnonymous, s.Phase())
	assert.True(t, s.IsInitialized, "initialization is never undone")
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "uninitialized", PhaseUninitialized.String())
	assert.Equal(t, "initializing", PhaseInitializing.String())
	assert.Equal(t, "authenticated", PhaseAuthenticated.String())
	assert.Equal(t, "anonymous", PhaseAnonymous.String())
}

func TestInitWithValidSession(t *testing.T) {
	client := &fakeAPI{me: func(context.Context) (*api.User, error) {
		u := alice
		return &u, nil
	}}
	store := newTestStore(client)

	store.Init(context.Background())

	state := store.State()
	require.NotNil(t, state.User)
	assert.Equal(t, "u1", state.User.ID)
	assert.True(t, state.IsInitialized)
	assert.False(t, state.IsLoading)
	assert.Equal(t, PhaseAuthenticated, state.Phase())
}

func TestInitWithExpiredSession(t *testing.T) {
	client := &fakeAPI{me: func(context.Context) (*api.User, error) {
		return nil, api.NewError(http.StatusUnauthorized, []byte(`{"detail":"token expired"}`))
	}}
	store := newTestStore(client)

	store.Init(context.Background())

	state := store.State()
	assert.Nil(t, state.User)
	assert.True(t, state.IsInitialized)
	assert.Equal(t, PhaseAnonymous, state.Phase())
}

func TestInitRunsOnce(t *testing.T) {
	client := &fakeAPI{}
	store := newTestStore(client)

	store.Init(context.Background())
	store.Init(context.Background())

	assert.Equal(t, int32(1), client.meCalls.Load())
}

func TestInitializedStaysTrue(t *testing.T) {
	client := &fakeAPI{me: func(context.Context) (*api.User, error) {
		return nil, api.TransportError(errors.New("connection refused"))
	}}
	store := newTestStore(client)
	assert.False(t, store.State().IsInitialized)

	store.Init(context.Background())
	assert.True(t, store.State().IsInitialized)

	store.Logout(context.Background())
	assert.True(t, store.State().IsInitialized)

	require.NoError(t, store.FetchUser(context.Background()))
	assert.True(t, store.State().IsInitialized)
}

func TestLoginThenFetchUserSameID(t *testing.T) {
	client := &fakeAPI{
		login: func(_ context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
			assert.Equal(t, "a@example.com", req.Email)
			return tokenFor(alice), nil
		},
		me: func(context.Context) (*api.User, error) {
			u := alice
			return &u, nil
		},
	}
	store := newTestStore(client)
	store.Init(context.Background())

	user, err := store.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, store.FetchUser(context.Background()))
	assert.Equal(t, user.ID, store.State().User.ID)
}

func TestLoginFailureClearsAndClassifies(t *testing.T) {
	client := &fakeAPI{
		me: func(context.Context) (*api.User, error) {
			u := alice
			return &u, nil
		},
		login: func(context.Context, api.LoginRequest) (*api.TokenResponse, error) {
			return nil, api.NewError(http.StatusUnauthorized, []byte(`{"detail":"Invalid credentials"}`))
		},
	}
	store := newTestStore(client)
	store.Init(context.Background())
	require.NotNil(t, store.State().User)

	_, err := store.Login(context.Background(), "a@example.com", "bad")
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid credentials", apiErr.Detail)
	assert.Equal(t, api.KindInvalidCredentials, api.KindOf(err))
	assert.Nil(t, store.State().User)
	assert.False(t, store.State().IsLoading)
}

func TestLoginWithoutEmbeddedUserLoadsMe(t *testing.T) {
	client := &fakeAPI{
		login: func(context.Context, api.LoginRequest) (*api.TokenResponse, error) {
			return &api.TokenResponse{AccessToken: "tok"}, nil
		},
		me: func(context.Context) (*api.User, error) {
			u := alice
			return &u, nil
		},
	}
	store := newTestStore(client)

	user, err := store.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, int32(1), client.meCalls.Load())
}

func TestLogoutIsIdempotent(t *testing.T) {
	client := &fakeAPI{
		logout: func(context.Context) (*api.LogoutResponse, error) {
			return nil, api.NewError(http.StatusUnauthorized, []byte(`{"detail":"Authentication required"}`))
		},
	}
	store := newTestStore(client)
	store.Init(context.Background())

	store.Logout(context.Background())
	assert.Equal(t, PhaseAnonymous, store.State().Phase())

	store.Logout(context.Background())
	assert.Equal(t, PhaseAnonymous, store.State().Phase())
	assert.Equal(t, int32(2), client.logoutCalls.Load())
}

func TestLogoutClearsEvenWhenBackendUnreachable(t *testing.T) {
	client := &fakeAPI{
		me: func(context.Context) (*api.User, error) {
			u := alice
			return &u, nil
		},
		logout: func(context.Context) (*api.LogoutResponse, error) {
			return nil, api.TransportError(errors.New("connection reset"))
		},
	}
	store := newTestStore(client)
	store.Init(context.Background())
	require.Equal(t, PhaseAuthenticated, store.State().Phase())

	store.Logout(context.Background())
	assert.Equal(t, PhaseAnonymous, store.State().Phase())
}

func TestRefreshSession(t *testing.T) {
	t.Run("success updates user", func(t *testing.T) {
		renamed := alice
		renamed.Username = "alice2"
		client := &fakeAPI{refresh: func(context.Context) (*api.TokenResponse, error) {
			return tokenFor(renamed), nil
		}}
		store := newTestStore(client)
		store.Init(context.Background())

		user, err := store.RefreshSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "alice2", user.Username)
		assert.Equal(t, PhaseAuthenticated, store.State().Phase())
	})

	t.Run("401 asks for a new login", func(t *testing.T) {
		client := &fakeAPI{refresh: func(context.Context) (*api.TokenResponse, error) {
			return nil, api.NewError(http.StatusUnauthorized, []byte(`{"detail":"token expired"}`))
		}}
		store := newTestStore(client)
		store.Init(context.Background())

		_, err := store.RefreshSession(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.Equal(t, api.KindSessionExpired, api.KindOf(err))
		assert.Equal(t, PhaseAnonymous, store.State().Phase())
	})

	t.Run("other failures clear without expiry", func(t *testing.T) {
		client := &fakeAPI{refresh: func(context.Context) (*api.TokenResponse, error) {
			return nil, api.NewError(http.StatusInternalServerError, []byte(`{"detail":"Internal server error"}`))
		}}
		store := newTestStore(client)

		_, err := store.RefreshSession(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSessionExpired)
		assert.Nil(t, store.State().User)
	})
}

func TestOperationsAreSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	track := func() {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	}

	client := &fakeAPI{
		me: func(context.Context) (*api.User, error) {
			track()
			u := alice
			return &u, nil
		},
		login: func(context.Context, api.LoginRequest) (*api.TokenResponse, error) {
			track()
			return tokenFor(alice), nil
		},
		logout: func(context.Context) (*api.LogoutResponse, error) {
			track()
			return &api.LogoutResponse{}, nil
		},
	}
	store := newTestStore(client)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); _ = store.FetchUser(context.Background()) }()
		go func() { defer wg.Done(); _, _ = store.Login(context.Background(), "a@example.com", "pw") }()
		go func() { defer wg.Done(); store.Logout(context.Background()) }()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.False(t, store.State().IsLoading)
}

func TestWaitingForSlotHonoursContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	client := &fakeAPI{me: func(context.Context) (*api.User, error) {
		close(started)
		<-release
		u := alice
		return &u, nil
	}}
	store := newTestStore(client)

	done := make(chan struct{})
	go func() {
		store.Init(context.Background())
		close(done)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Login(ctx, "a@example.com", "pw")
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
	assert.Equal(t, PhaseAuthenticated, store.State().Phase())
}

func TestSubscribe(t *testing.T) {
	client := &fakeAPI{me: func(context.Context) (*api.User, error) {
		u := alice
		return &u, nil
	}}
	store := newTestStore(client)

	updates, cancel := store.Subscribe()
	first := <-updates
	assert.Equal(t, PhaseUninitialized, first.Phase())

	store.Init(context.Background())

	// intermediate snapshots may be dropped, the newest is always delivered
	latest := <-updates
	assert.Equal(t, PhaseAuthenticated, latest.Phase())
	assert.Equal(t, "u1", latest.User.ID)

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestSnapshotsAreCopies(t *testing.T) {
	client := &fakeAPI{me: func(context.Context) (*api.User, error) {
		u := alice
		return &u, nil
	}}
	store := newTestStore(client)
	store.Init(context.Background())

	state := store.State()
	state.User.Username = "mallory"
	assert.Equal(t, "alice", store.State().User.Username)
}

func TestOnboard(t *testing.T) {
	t.Run("profile failure is not fatal", func(t *testing.T) {
		var sent api.UpdateProfileRequest
		client := &fakeAPI{
			signup: func(_ context.Context, req api.SignupRequest) (*api.TokenResponse, error) {
				assert.Equal(t, "alice", req.Username)
				return tokenFor(alice), nil
			},
			updateProfile: func(_ context.Context, req api.UpdateProfileRequest) (*api.UserProfileResponse, error) {
				sent = req
				return nil, api.NewError(http.StatusInternalServerError, []byte(`{"detail":"Internal server error"}`))
			},
		}
		store := newTestStore(client)

		user, err := store.Onboard(context.Background(), SignupInput{
			Username:  "alice",
			Email:     "a@example.com",
			Password:  "pw",
			FirstName: "Alice",
			LastName:  "Liddell",
		})
		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
		assert.Equal(t, map[string]any{"firstName": "Alice", "lastName": "Liddell"}, sent.ProfileUpdates)
		assert.NotNil(t, store.State().User)
	})

	t.Run("signup failure is returned", func(t *testing.T) {
		client := &fakeAPI{
			signup: func(context.Context, api.SignupRequest) (*api.TokenResponse, error) {
				return nil, api.NewError(http.StatusBadRequest, []byte(`{"detail":"Email already exists"}`))
			},
		}
		store := newTestStore(client)

		_, err := store.Onboard(context.Background(), SignupInput{Username: "alice", Email: "a@example.com", Password: "pw"})
		assert.Equal(t, api.KindEmailTaken, api.KindOf(err))
	})

	t.Run("no name skips profile update", func(t *testing.T) {
		client := &fakeAPI{
			signup: func(context.Context, api.SignupRequest) (*api.TokenResponse, error) {
				return tokenFor(alice), nil
			},
		}
		store := newTestStore(client)

		_, err := store.Onboard(context.Background(), SignupInput{Username: "alice", Email: "a@example.com", Password: "pw"})
		assert.NoError(t, err)
	})
}
