package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tether/cmd/identity"
	"tether/cmd/internal/auth/revocation"
	"tether/cmd/internal/auth/session"
	"tether/cmd/security/password"
	"tether/cmd/security/token"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testEmail    = "ada@example.com"
	testPassword = "Str0ng!Pass"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingNotifier) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

type fixture struct {
	m        *Manager
	accounts *identity.MemoryStore
	sessions *session.MemoryStore
	registry *revocation.MemoryRegistry
	issuer   *session.Issuer
	clock    *clock
	events   *recordingNotifier
	metrics  *Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	cfg := session.DefaultConfig()
	cfg.AccessSecret = testSecret
	require.NoError(t, cfg.Validate())

	gen, err := token.NewGenerator("")
	require.NoError(t, err)
	iss, err := session.NewIssuer(cfg, gen)
	require.NoError(t, err)

	pcfg := password.DefaultConfig()
	pcfg.Cost = bcrypt.MinCost
	hasher, err := password.NewHasher(pcfg)
	require.NoError(t, err)

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		accounts: identity.NewMemoryStore(),
		sessions: session.NewMemoryStore(),
		registry: revocation.NewMemoryRegistry(clk.Now),
		issuer:   iss,
		clock:    clk,
		events:   &recordingNotifier{},
		metrics:  metrics,
	}

	f.m, err = NewManager(Deps{
		Accounts: f.accounts,
		Sessions: f.sessions,
		Registry: f.registry,
		Hasher:   hasher,
		Issuer:   iss,
	},
		WithClock(clk.Now),
		WithNotifier(f.events),
		WithMetrics(metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) register(t *testing.T) AuthResponse {
	t.Helper()
	resp, err := f.m.Register(context.Background(), RegisterInput{
		Email:     testEmail,
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) principal(t *testing.T, resp AuthResponse) Principal {
	t.Helper()
	p, err := f.m.Authenticate(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	return p
}

func TestNewManager_MissingDependency(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Deps{})
	require.Error(t, err)
}

func TestRegister_OK(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.register(t)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Len(t, resp.RefreshToken, 64)
	assert.Equal(t, session.TokenType, resp.TokenType)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, testEmail, resp.User.Email)
	assert.Equal(t, identity.DefaultRole, resp.User.Role)
	assert.Equal(t, "Ada", resp.User.FirstName)
	assert.Nil(t, resp.User.LastLoginAt)
	assert.Equal(t, 1, f.sessions.Len())
	assert.Equal(t, []string{EventRegistered}, f.events.names())

	acc, err := f.accounts.GetByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, acc.PasswordHash)

	// Only the digest of the refresh token is persisted.
	_, err = f.sessions.FindByDigest(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = f.sessions.FindByDigest(context.Background(), f.issuer.Digest(resp.RefreshToken))
	assert.NoError(t, err)
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t)

	_, err := f.m.Register(context.Background(), RegisterInput{
		Email:    "  ADA@Example.com ",
		Password: testPassword,
	})
	require.ErrorIs(t, err, ErrAccountAlreadyExists)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Detail, testEmail)
	assert.Equal(t, 1, f.sessions.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ops.WithLabelValues("register", "account-already-exists")))
}

func TestRegister_CustomUniqueViolation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.m.isUniqueViolation = func(error) bool { return false }
	f.register(t)

	_, err := f.m.Register(context.Background(), RegisterInput{Email: testEmail, Password: testPassword})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccountAlreadyExists)
	assert.Empty(t, Slug(err))
}

func TestLogin_OK(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t)
	f.clock.Advance(time.Minute)

	resp, err := f.m.Login(context.Background(), LoginInput{Email: "Ada@Example.com", Password: testPassword})
	require.NoError(t, err)

	require.NotNil(t, resp.User.LastLoginAt)
	assert.True(t, resp.User.LastLoginAt.Equal(f.clock.Now()))
	assert.Equal(t, 2, f.sessions.Len())
	assert.Equal(t, []string{EventRegistered, EventLoggedIn}, f.events.names())

	acc, err := f.accounts.GetByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.NotNil(t, acc.LastLoginAt)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t)

	_, errUnknown := f.m.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: testPassword})
	_, errWrong := f.m.Login(context.Background(), LoginInput{Email: testEmail, Password: "Wr0ng!Pass"})

	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, 1, f.sessions.Len())
}

func TestRefreshTokens_Rotates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	first := f.register(t)
	f.clock.Advance(time.Second)

	second, err := f.m.RefreshTokens(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, 1, f.sessions.Len())

	_, err = f.m.RefreshTokens(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.m.RefreshTokens(context.Background(), second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshTokens_Invalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"unknown", "deadbeef"},
		{"oversized", string(make([]byte, maxRefreshTokenLen+1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.RefreshTokens(context.Background(), tt.raw)
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)
		})
	}
	assert.Equal(t, 1, f.sessions.Len())
}

func TestRefreshTokens_ExpiredSessionIsDeleted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)

	f.clock.Advance(31 * 24 * time.Hour)

	_, err := f.m.RefreshTokens(context.Background(), resp.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestRefreshTokens_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)

	const n = 16
	var (
		wg   sync.WaitGroup
		ok   atomic.Int32
		lost atomic.Int32
	)
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.m.RefreshTokens(context.Background(), resp.RefreshToken)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInvalidRefreshToken):
				lost.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), lost.Load())
	assert.Equal(t, 1, f.sessions.Len())
}

func TestLogout_RevokesAndDeletesSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	first := f.register(t)
	second, err := f.m.Login(context.Background(), LoginInput{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, 2, f.sessions.Len())

	p := f.principal(t, first)
	require.NoError(t, f.m.Logout(context.Background(), p.AccountID, p.TokenID, p.ExpiresAt.Unix()))

	assert.Equal(t, 0, f.sessions.Len())
	assert.Equal(t, 1, f.registry.Len())

	_, err = f.m.Authenticate(context.Background(), first.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Only the presented access token is revoked.
	_, err = f.m.Authenticate(context.Background(), second.AccessToken)
	assert.NoError(t, err)

	_, err = f.m.RefreshTokens(context.Background(), second.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// Idempotent.
	require.NoError(t, f.m.Logout(context.Background(), p.AccountID, p.TokenID, p.ExpiresAt.Unix()))
	assert.Contains(t, f.events.names(), EventLoggedOut)
}

func TestLogout_RevocationOutlivesClockSkew(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)
	p := f.principal(t, resp)

	require.NoError(t, f.m.Logout(context.Background(), p.AccountID, p.TokenID, p.ExpiresAt.Unix()))

	// Past exp but inside the verifier's skew tolerance.
	f.clock.Advance(15*time.Minute + 10*time.Second)
	_, err := f.m.Authenticate(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	revoked, err := f.registry.IsRevoked(context.Background(), p.TokenID)
	require.NoError(t, err)
	assert.True(t, revoked)

	f.clock.Advance(21 * time.Second)
	revoked, err = f.registry.IsRevoked(context.Background(), p.TokenID)
	require.NoError(t, err)
	assert.False(t, revoked)
	_, err = f.m.Authenticate(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLogout_InsideClockSkewStillRevokes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)

	f.clock.Advance(15*time.Minute + 5*time.Second)
	p := f.principal(t, resp)

	require.NoError(t, f.m.Logout(context.Background(), p.AccountID, p.TokenID, p.ExpiresAt.Unix()))
	assert.Equal(t, 1, f.registry.Len())

	_, err := f.m.Authenticate(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLogout_UnacceptedTokenSkipsRevocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)
	p := f.principal(t, resp)

	past := f.clock.Now().Add(-time.Minute).Unix()
	require.NoError(t, f.m.Logout(context.Background(), p.AccountID, p.TokenID, past))
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 0, f.sessions.Len())
}

func TestChangePassword_OK(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)
	p := f.principal(t, resp)

	err := f.m.ChangePassword(context.Background(), ChangePasswordInput{
		AccountID:       p.AccountID,
		CurrentPassword: testPassword,
		NewPassword:     "N3w!Password",
		TokenID:         p.TokenID,
		TokenExpiry:     p.ExpiresAt.Unix(),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, f.sessions.Len())
	_, err = f.m.Authenticate(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.m.RefreshTokens(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.m.Login(context.Background(), LoginInput{Email: testEmail, Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.m.Login(context.Background(), LoginInput{Email: testEmail, Password: "N3w!Password"})
	assert.NoError(t, err)
	assert.Contains(t, f.events.names(), EventPasswordChanged)
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)
	p := f.principal(t, resp)

	err := f.m.ChangePassword(context.Background(), ChangePasswordInput{
		AccountID:       p.AccountID,
		CurrentPassword: "Wr0ng!Pass",
		NewPassword:     "N3w!Password",
		TokenID:         p.TokenID,
		TokenExpiry:     p.ExpiresAt.Unix(),
	})
	require.ErrorIs(t, err, ErrInvalidCurrentPassword)
	assert.Equal(t, 1, f.sessions.Len())
	assert.Equal(t, 0, f.registry.Len())
}

func TestChangePassword_MissingAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.m.ChangePassword(context.Background(), ChangePasswordInput{AccountID: "01J0000000000000000000000"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAccount_OK(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)
	p := f.principal(t, resp)

	err := f.m.DeleteAccount(context.Background(), DeleteAccountInput{
		AccountID:   p.AccountID,
		Password:    testPassword,
		TokenID:     p.TokenID,
		TokenExpiry: p.ExpiresAt.Unix(),
	})
	require.NoError(t, err)

	_, err = f.m.Me(context.Background(), p.AccountID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.m.Authenticate(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 0, f.sessions.Len())

	// The email is free again.
	f.register(t)
}

func TestDeleteAccount_WrongPassword(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)
	p := f.principal(t, resp)

	err := f.m.DeleteAccount(context.Background(), DeleteAccountInput{AccountID: p.AccountID, Password: "Wr0ng!Pass"})
	require.ErrorIs(t, err, ErrInvalidCurrentPassword)

	_, err = f.m.Me(context.Background(), p.AccountID)
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)

	p := f.principal(t, resp)
	assert.Equal(t, resp.User.ID, p.AccountID)
	assert.Equal(t, testEmail, p.Email)
	assert.Equal(t, identity.DefaultRole, p.Role)

	_, err := f.m.Authenticate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	f.clock.Advance(16 * time.Minute)
	_, err = f.m.Authenticate(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.register(t)

	v, err := f.m.Me(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.User, v)
}
