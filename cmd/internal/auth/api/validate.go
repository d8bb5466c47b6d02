package authapi

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"tether/cmd/internal/auth/lifecycle"
	"tether/cmd/security/password"
)

// DeleteConfirmation must be echoed verbatim to delete an account.
const DeleteConfirmation = "DELETE MY ACCOUNT"

const (
	maxEmailLen = 254
	maxNameLen  = 50
)

const passwordRulesMessage = "Password must contain at least 1 uppercase, 1 lowercase, 1 digit, and 1 special character (" + password.SpecialChars + ")."

type fieldErrors []lifecycle.FieldError

func (f *fieldErrors) add(field, code, msg string) {
	*f = append(*f, lifecycle.FieldError{Field: field, Code: code, Message: msg})
}

func (f *fieldErrors) email(field, v string) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		f.add(field, "required", "Email is required.")
	case len(v) > maxEmailLen || !validEmail(v):
		f.add(field, "invalid_email", "Email must be a valid email address.")
	}
}

func (f *fieldErrors) required(field, v, msg string) {
	if v == "" {
		f.add(field, "required", msg)
	}
}

func (f *fieldErrors) name(field, v string) {
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	switch {
	case n == 0:
		f.add(field, "required", field+" must not be empty.")
	case n > maxNameLen:
		f.add(field, "too_long", field+" must be at most 50 characters.")
	}
}

func (f *fieldErrors) password(field, v string, p password.Policy) {
	err := p.Validate(v)
	switch {
	case err == nil:
	case errors.Is(err, password.ErrPasswordTooShort):
		f.add(field, "too_short", "Password must be at least 8 characters.")
	case errors.Is(err, password.ErrPasswordTooLong):
		f.add(field, "too_long", "Password must be at most 100 characters.")
	default:
		f.add(field, "weak_password", passwordRulesMessage)
	}
}

// validEmail accepts a bare addr-spec with a dotted domain.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func (h *Handler) validateRegister(req registerRequest) fieldErrors {
	var f fieldErrors
	f.email("email", req.Email)
	f.password("password", req.Password, h.policy)
	f.name("firstName", req.FirstName)
	f.name("lastName", req.LastName)
	return f
}

func validateLogin(req loginRequest) fieldErrors {
	var f fieldErrors
	f.email("email", req.Email)
	f.required("password", req.Password, "Password is required.")
	return f
}

func validateRefresh(req refreshRequest) fieldErrors {
	var f fieldErrors
	f.required("refreshToken", strings.TrimSpace(req.RefreshToken), "Refresh token is required.")
	return f
}

func (h *Handler) validateChangePassword(req changePasswordRequest) fieldErrors {
	var f fieldErrors
	f.required("currentPassword", req.CurrentPassword, "Current password must not be empty.")
	f.password("newPassword", req.NewPassword, h.policy)
	return f
}

func validateDeleteAccount(req deleteAccountRequest) fieldErrors {
	var f fieldErrors
	f.required("password", req.Password, "Password is required.")
	if req.ConfirmationText != DeleteConfirmation {
		f.add("confirmationText", "invalid_confirmation", `confirmationText must be exactly "`+DeleteConfirmation+`".`)
	}
	return f
}
