package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tether/cmd/internal/auth/lifecycle"
	"tether/cmd/internal/requestctx"
	"tether/cmd/security/password"
)

// Handler wires HTTP auth endpoints to the lifecycle Manager.
type Handler struct {
	log *slog.Logger
	cfg Config

	mgr    *lifecycle.Manager
	policy password.Policy
	login  *loginLimiter
	now    func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithPasswordPolicy overrides the registration password rules.
func WithPasswordPolicy(p password.Policy) HandlerOption {
	return func(h *Handler) { h.policy = p }
}

// WithClock overrides time.Now for rate limiting.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, mgr *lifecycle.Manager, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if mgr == nil {
		return nil, errors.New("authapi: nil manager")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 || cfg.LoginLimit <= 0 || cfg.LoginWindow <= 0 {
		return nil, ErrConfig
	}

	h := &Handler{
		log:    log,
		cfg:    cfg,
		mgr:    mgr,
		policy: password.DefaultPolicy(),
		login:  newLoginLimiter(cfg.LoginLimit, cfg.LoginWindow),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto r.
func (h *Handler) Register(r *mux.Router) {
	if h == nil || r == nil {
		return
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(h.withClientIP)

	v1.HandleFunc("/auth/register", h.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/refresh", h.handleRefresh).Methods(http.MethodPost)
	v1.HandleFunc("/auth/logout", h.handleLogout).Methods(http.MethodPost)

	v1.HandleFunc("/users/me", h.handleMe).Methods(http.MethodGet)
	v1.HandleFunc("/users/me", h.handleDeleteAccount).Methods(http.MethodDelete)
	v1.HandleFunc("/users/me/password", h.handleChangePassword).Methods(http.MethodPatch)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if f := h.validateRegister(req); len(f) > 0 {
		h.writeValidation(w, r, f...)
		return
	}

	resp, err := h.mgr.Register(r.Context(), lifecycle.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	key := requestctx.ClientIP(r.Context())
	if key == "" {
		key = "unknown"
	}
	if ok, retryAfter := h.login.allow(key, h.now()); !ok {
		h.log.WarnContext(r.Context(), "auth.login.rate_limited", "client_ip", key)
		h.writeRateLimited(w, r, retryAfter)
		return
	}

	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if f := validateLogin(req); len(f) > 0 {
		h.writeValidation(w, r, f...)
		return
	}

	resp, err := h.mgr.Login(r.Context(), lifecycle.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if f := validateRefresh(req); len(f) > 0 {
		h.writeValidation(w, r, f...)
		return
	}

	resp, err := h.mgr.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	if err := h.mgr.Logout(r.Context(), p.AccountID, p.TokenID, p.ExpiresAt.Unix()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	view, err := h.mgr.Me(r.Context(), p.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if f := h.validateChangePassword(req); len(f) > 0 {
		h.writeValidation(w, r, f...)
		return
	}

	err := h.mgr.ChangePassword(r.Context(), lifecycle.ChangePasswordInput{
		AccountID:       p.AccountID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		TokenID:         p.TokenID,
		TokenExpiry:     p.ExpiresAt.Unix(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req deleteAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if f := validateDeleteAccount(req); len(f) > 0 {
		h.writeValidation(w, r, f...)
		return
	}

	err := h.mgr.DeleteAccount(r.Context(), lifecycle.DeleteAccountInput{
		AccountID:   p.AccountID,
		Password:    req.Password,
		TokenID:     p.TokenID,
		TokenExpiry: p.ExpiresAt.Unix(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// ---- helpers ----

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		h.writeError(w, r, &lifecycle.Error{
			Op:     "authapi.decode",
			Kind:   lifecycle.ErrValidationFailed,
			Detail: "The request body is not a valid JSON object.",
		})
		return false
	}
	return true
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (lifecycle.Principal, bool) {
	token := bearerToken(r)
	if token == "" {
		h.writeError(w, r, &lifecycle.Error{
			Op:     "authapi.requireAuth",
			Kind:   lifecycle.ErrUnauthenticated,
			Detail: "Missing bearer token.",
		})
		return lifecycle.Principal{}, false
	}

	p, err := h.mgr.Authenticate(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return lifecycle.Principal{}, false
	}
	return p, true
}

// withClientIP stores the caller address for rate limiting and audit events.
func (h *Handler) withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
			r = r.WithContext(requestctx.WithClientIP(r.Context(), ip.String()))
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
