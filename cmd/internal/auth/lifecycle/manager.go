package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tether/cmd/identity"
	"tether/cmd/internal/auth/revocation"
	"tether/cmd/internal/auth/session"
	"tether/cmd/security/password"
)

// maxRefreshTokenLen bounds presented refresh tokens before hashing.
const maxRefreshTokenLen = 4096

// Deps are the collaborators every Manager needs.
type Deps struct {
	Accounts identity.Store
	Sessions session.Store
	Registry revocation.Registry
	Hasher   password.Hasher
	Issuer   *session.Issuer
}

// Manager implements the session lifecycle.
type Manager struct {
	accounts identity.Store
	sessions session.Store
	registry revocation.Registry
	hasher   password.Hasher
	issuer   *session.Issuer

	notifier          Notifier
	isUniqueViolation func(error) bool
	now               func() time.Time
	log               *slog.Logger
	metrics           *Metrics

	// dummyHash equalizes login cost when the account does not exist.
	dummyHash string
}

// Option configures optional Manager dependencies.
type Option func(*Manager)

// WithNotifier overrides the default no-op notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithUniqueViolation overrides how account-creation errors are classified as
// duplicate email. The default is identity.IsConflict.
func WithUniqueViolation(fn func(error) bool) Option {
	return func(m *Manager) {
		if fn != nil {
			m.isUniqueViolation = fn
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics enables operation counters.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager validates deps and applies opts.
func NewManager(d Deps, opts ...Option) (*Manager, error) {
	if d.Accounts == nil || d.Sessions == nil || d.Registry == nil || d.Hasher == nil || d.Issuer == nil {
		return nil, errors.New("lifecycle: missing dependency")
	}

	m := &Manager{
		accounts:          d.Accounts,
		sessions:          d.Sessions,
		registry:          d.Registry,
		hasher:            d.Hasher,
		issuer:            d.Issuer,
		notifier:          NoopNotifier{},
		isUniqueViolation: identity.IsConflict,
		now:               time.Now,
		log:               slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	dummy, err := m.hasher.Hash("tether-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("lifecycle: dummy hash: %w", err)
	}
	m.dummyHash = dummy

	return m, nil
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput is a login request.
type LoginInput struct {
	Email    string
	Password string
}

// ChangePasswordInput carries the caller's current access token so it can be revoked.
type ChangePasswordInput struct {
	AccountID       string
	CurrentPassword string
	NewPassword     string
	TokenID         string
	TokenExpiry     int64
}

// DeleteAccountInput carries the caller's current access token so it can be revoked.
type DeleteAccountInput struct {
	AccountID   string
	Password    string
	TokenID     string
	TokenExpiry int64
}

// AuthResponse is returned by Register, Login and RefreshTokens.
type AuthResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int64         `json:"expiresIn"`
	TokenType    string        `json:"tokenType"`
	User         identity.View `json:"user"`
}

// Principal is an authenticated caller.
type Principal struct {
	AccountID string
	Email     string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (resp AuthResponse, err error) {
	const op = "lifecycle.Register"
	defer func() { m.metrics.record("register", err) }()

	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	now := m.now().UTC()
	acc, err := m.accounts.Create(ctx, identity.CreateAccountInput{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Now:          now,
	})
	if err != nil {
		if m.isUniqueViolation(err) {
			return AuthResponse{}, fail(op, ErrAccountAlreadyExists,
				fmt.Sprintf("An account with email '%s' already exists.", identity.NormalizeEmail(in.Email)))
		}
		return AuthResponse{}, fmt.Errorf("%s: create account: %w", op, err)
	}

	resp, err = m.issuePair(ctx, acc, now)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	m.log.InfoContext(ctx, "auth.register.ok", "account_id", acc.ID)
	m.notifier.Notify(ctx, Event{Name: EventRegistered, AccountID: acc.ID, At: now})
	return resp, nil
}

// Login authenticates by email and password. Unknown email and wrong password
// fail identically.
func (m *Manager) Login(ctx context.Context, in LoginInput) (resp AuthResponse, err error) {
	const op = "lifecycle.Login"
	defer func() { m.metrics.record("login", err) }()

	acc, err := m.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		if identity.IsNotFound(err) {
			_ = m.hasher.Verify(in.Password, m.dummyHash)
			return AuthResponse{}, fail(op, ErrInvalidCredentials, detailInvalidCredentials)
		}
		return AuthResponse{}, fmt.Errorf("%s: lookup: %w", op, err)
	}

	if !m.hasher.Verify(in.Password, acc.PasswordHash) {
		return AuthResponse{}, fail(op, ErrInvalidCredentials, detailInvalidCredentials)
	}

	now := m.now().UTC()
	if err := m.accounts.UpdateLastLogin(ctx, acc.ID, now); err != nil {
		return AuthResponse{}, fmt.Errorf("%s: last login: %w", op, err)
	}
	acc.LastLoginAt = &now

	resp, err = m.issuePair(ctx, acc, now)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	m.log.InfoContext(ctx, "auth.login.ok", "account_id", acc.ID)
	m.notifier.Notify(ctx, Event{Name: EventLoggedIn, AccountID: acc.ID, At: now})
	return resp, nil
}

// RefreshTokens rotates a refresh token. The presented session is deleted
// before its replacement is created; a concurrent presentation of the same
// token loses the delete and fails.
func (m *Manager) RefreshTokens(ctx context.Context, raw string) (resp AuthResponse, err error) {
	const op = "lifecycle.RefreshTokens"
	defer func() { m.metrics.record("refresh", err) }()

	invalid := fail(op, ErrInvalidRefreshToken, detailInvalidRefreshToken)

	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRefreshTokenLen {
		return AuthResponse{}, invalid
	}

	sess, err := m.sessions.FindByDigest(ctx, m.issuer.Digest(raw))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return AuthResponse{}, invalid
		}
		return AuthResponse{}, fmt.Errorf("%s: find session: %w", op, err)
	}

	now := m.now().UTC()
	if sess.Expired(now) {
		if err := m.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return AuthResponse{}, fmt.Errorf("%s: delete expired session: %w", op, err)
		}
		m.log.InfoContext(ctx, "auth.refresh.expired", "account_id", sess.AccountID)
		return AuthResponse{}, invalid
	}

	if err := m.sessions.Delete(ctx, sess.ID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			m.log.InfoContext(ctx, "auth.refresh.race_lost", "account_id", sess.AccountID)
			return AuthResponse{}, invalid
		}
		return AuthResponse{}, fmt.Errorf("%s: delete session: %w", op, err)
	}

	acc, err := m.accounts.GetByID(ctx, sess.AccountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return AuthResponse{}, invalid
		}
		return AuthResponse{}, fmt.Errorf("%s: load account: %w", op, err)
	}

	resp, err = m.issuePair(ctx, acc, now)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// Logout revokes the presented access token while it is still accepted and
// deletes every refresh session of the account. It is idempotent.
func (m *Manager) Logout(ctx context.Context, accountID, tokenID string, tokenExpiry int64) (err error) {
	const op = "lifecycle.Logout"
	defer func() { m.metrics.record("logout", err) }()

	now := m.now().UTC()
	if err := m.endSessions(ctx, accountID, tokenID, tokenExpiry, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m.log.InfoContext(ctx, "auth.logout.ok", "account_id", accountID)
	m.notifier.Notify(ctx, Event{Name: EventLoggedOut, AccountID: accountID, At: now})
	return nil
}

// ChangePassword verifies the current password, stores the new digest and
// then ends every session exactly like Logout.
func (m *Manager) ChangePassword(ctx context.Context, in ChangePasswordInput) (err error) {
	const op = "lifecycle.ChangePassword"
	defer func() { m.metrics.record("change_password", err) }()

	acc, err := m.accounts.GetByID(ctx, in.AccountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return fail(op, ErrNotFound, detailNotFound)
		}
		return fmt.Errorf("%s: load account: %w", op, err)
	}

	if !m.hasher.Verify(in.CurrentPassword, acc.PasswordHash) {
		return fail(op, ErrInvalidCurrentPassword, detailInvalidCurrentPassword)
	}

	hash, err := m.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := m.now().UTC()
	if err := m.accounts.UpdatePasswordHash(ctx, acc.ID, hash, now); err != nil {
		if identity.IsNotFound(err) {
			return fail(op, ErrNotFound, detailNotFound)
		}
		return fmt.Errorf("%s: update password: %w", op, err)
	}

	if err := m.endSessions(ctx, acc.ID, in.TokenID, in.TokenExpiry, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m.log.InfoContext(ctx, "auth.password_change.ok", "account_id", acc.ID)
	m.notifier.Notify(ctx, Event{Name: EventPasswordChanged, AccountID: acc.ID, At: now})
	return nil
}

// DeleteAccount verifies the password, ends every session and removes the account.
func (m *Manager) DeleteAccount(ctx context.Context, in DeleteAccountInput) (err error) {
	const op = "lifecycle.DeleteAccount"
	defer func() { m.metrics.record("delete_account", err) }()

	acc, err := m.accounts.GetByID(ctx, in.AccountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return fail(op, ErrNotFound, detailNotFound)
		}
		return fmt.Errorf("%s: load account: %w", op, err)
	}

	if !m.hasher.Verify(in.Password, acc.PasswordHash) {
		return fail(op, ErrInvalidCurrentPassword, "The provided password is incorrect.")
	}

	now := m.now().UTC()
	if err := m.endSessions(ctx, acc.ID, in.TokenID, in.TokenExpiry, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.accounts.Delete(ctx, acc.ID); err != nil {
		if identity.IsNotFound(err) {
			return fail(op, ErrNotFound, detailNotFound)
		}
		return fmt.Errorf("%s: delete account: %w", op, err)
	}

	m.log.InfoContext(ctx, "auth.account_delete.ok", "account_id", acc.ID)
	m.notifier.Notify(ctx, Event{Name: EventDeleted, AccountID: acc.ID, At: now})
	return nil
}

// Authenticate verifies an access token and refuses revoked ones.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	const op = "lifecycle.Authenticate"

	claims, err := m.issuer.Verify(accessToken, m.now())
	if err != nil {
		return Principal{}, fail(op, ErrUnauthenticated, detailUnauthenticated)
	}

	revoked, err := m.registry.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return Principal{}, fmt.Errorf("%s: revocation lookup: %w", op, err)
	}
	if revoked {
		return Principal{}, fail(op, ErrUnauthenticated, "This token has been revoked.")
	}

	return Principal{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Role:      claims.Role,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Me returns the safe view of the account.
func (m *Manager) Me(ctx context.Context, accountID string) (identity.View, error) {
	const op = "lifecycle.Me"

	acc, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.View{}, fail(op, ErrNotFound, detailNotFound)
		}
		return identity.View{}, fmt.Errorf("%s: %w", op, err)
	}
	return identity.ToView(acc), nil
}

// issuePair signs an access token, mints a refresh token and persists its session.
func (m *Manager) issuePair(ctx context.Context, acc identity.Account, now time.Time) (AuthResponse, error) {
	at, err := m.issuer.IssueAccessToken(acc.ID, acc.Email, acc.Role, now)
	if err != nil {
		return AuthResponse{}, err
	}

	raw, err := m.issuer.IssueRefreshToken()
	if err != nil {
		return AuthResponse{}, fmt.Errorf("refresh token: %w", err)
	}

	if _, err := m.sessions.Create(ctx, acc.ID, m.issuer.Digest(raw), now.Add(m.issuer.RefreshTTL()), now); err != nil {
		return AuthResponse{}, fmt.Errorf("persist session: %w", err)
	}

	return AuthResponse{
		AccessToken:  at.Token,
		RefreshToken: raw,
		ExpiresIn:    m.issuer.ExpiresIn(),
		TokenType:    session.TokenType,
		User:         identity.ToView(acc),
	}, nil
}

// endSessions revokes the presented access token for as long as the issuer
// would still accept it, in whole seconds rounded up, and deletes all refresh
// sessions of the account.
func (m *Manager) endSessions(ctx context.Context, accountID, tokenID string, tokenExpiry int64, now time.Time) error {
	if tokenID != "" {
		until := m.issuer.AcceptUntil(time.Unix(tokenExpiry, 0))
		if ttl := until.Sub(now); ttl > 0 {
			ttl = (ttl + time.Second - 1).Truncate(time.Second)
			if err := m.registry.Revoke(ctx, tokenID, ttl); err != nil {
				return fmt.Errorf("revoke access token: %w", err)
			}
		}
	}

	n, err := m.sessions.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	m.log.DebugContext(ctx, "auth.sessions.deleted", "account_id", accountID, "count", n)
	return nil
}
