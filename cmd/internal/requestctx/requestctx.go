// Package requestctx carries per-request values (request id, client IP)
// through context.Context so that logging, problem payloads and audit events
// agree on them.
package requestctx

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// HeaderRequestID is read from and echoed on every HTTP exchange.
const HeaderRequestID = "X-Request-Id"

// maxRequestIDLen bounds caller-supplied ids.
const maxRequestIDLen = 128

type ctxKey int

const (
	requestIDKey ctxKey = iota
	clientIPKey
)

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id in ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClientIP returns ctx carrying the resolved client address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client address in ctx, or "".
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// NormalizeRequestID keeps a caller-supplied id when it is printable and
// short, otherwise it mints a new UUID.
func NormalizeRequestID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRequestIDLen {
		return uuid.NewString()
	}
	for _, r := range raw {
		if r < 0x21 || r > 0x7e {
			return uuid.NewString()
		}
	}
	return raw
}
