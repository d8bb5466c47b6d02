package authapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tether/cmd/internal/auth/lifecycle"
	"tether/cmd/internal/requestctx"
)

// ProblemTypeBase prefixes every problem type URI.
const ProblemTypeBase = "https://tether.dev/errors/"

// Problem is the error body of every failed request.
type Problem struct {
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Status    int                    `json:"status"`
	Detail    string                 `json:"detail"`
	Instance  string                 `json:"instance"`
	Timestamp string                 `json:"timestamp"`
	RequestID string                 `json:"requestId"`
	Errors    []lifecycle.FieldError `json:"errors,omitempty"`
}

type problemKind struct {
	status int
	title  string
}

var problemKinds = map[string]problemKind{
	"account-already-exists":   {http.StatusConflict, "Account Already Exists"},
	"invalid-credentials":      {http.StatusUnauthorized, "Invalid Credentials"},
	"invalid-refresh-token":    {http.StatusUnauthorized, "Invalid Refresh Token"},
	"invalid-current-password": {http.StatusUnauthorized, "Invalid Current Password"},
	"not-found":                {http.StatusNotFound, "Not Found"},
	"validation-failed":        {http.StatusBadRequest, "Validation Failed"},
	"unauthenticated":          {http.StatusUnauthorized, "Unauthorized"},
	"too-many-requests":        {http.StatusTooManyRequests, "Too Many Requests"},
	"internal-server-error":    {http.StatusInternalServerError, "Internal Server Error"},
}

func newProblem(r *http.Request, slug, detail string) Problem {
	k, ok := problemKinds[slug]
	if !ok {
		slug = "internal-server-error"
		k = problemKinds[slug]
	}
	return Problem{
		Type:      ProblemTypeBase + slug,
		Title:     k.title,
		Status:    k.status,
		Detail:    detail,
		Instance:  r.URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestctx.RequestID(r.Context()),
	}
}

func writeProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// writeError maps err to a problem. Errors without a lifecycle kind are
// logged and reported as 500 without their text.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var le *lifecycle.Error
	if slug := lifecycle.Slug(err); slug != "" && errors.As(err, &le) {
		p := newProblem(r, slug, le.Detail)
		p.Errors = le.Fields
		writeProblem(w, p)
		return
	}

	h.log.ErrorContext(r.Context(), "http.handler.fail", "path", r.URL.Path, "err", err)
	writeProblem(w, newProblem(r, "internal-server-error", "An unexpected error occurred."))
}

func (h *Handler) writeValidation(w http.ResponseWriter, r *http.Request, fields ...lifecycle.FieldError) {
	h.writeError(w, r, lifecycle.ValidationError("authapi.validate", fields...))
}
