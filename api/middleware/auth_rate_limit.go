package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coutlabs/cout-backend/api/responses"
	"github.com/coutlabs/cout-backend/pkg/config"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/logger"
)

const throttleKeyPrefix = "cout:throttle"

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// ThrottlePolicy caps a credential surface by source IP and by the email in
// the request body. Emails are hashed before they touch Redis so a key dump
// never leaks who tried to sign in.
type ThrottlePolicy struct {
	Surface  string
	Window   time.Duration
	PerIP    int
	PerEmail int
}

// LoginThrottle is the policy for password logins. The per-email cap is the
// tight one; the per-IP cap only catches wide scans from a single address.
func LoginThrottle(cfg config.AuthRateLimitConfig) ThrottlePolicy {
	return ThrottlePolicy{
		Surface:  "login",
		Window:   cfg.LoginWindow,
		PerIP:    cfg.LoginIPLimit,
		PerEmail: cfg.LoginEmailLimit,
	}
}

// RegisterThrottle is the policy for organization signups.
func RegisterThrottle(cfg config.AuthRateLimitConfig) ThrottlePolicy {
	return ThrottlePolicy{
		Surface:  "register",
		Window:   cfg.RegisterWindow,
		PerIP:    cfg.RegisterIPLimit,
		PerEmail: cfg.RegisterEmailLimit,
	}
}

func (p ThrottlePolicy) enabled() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0)
}

func (p ThrottlePolicy) surface() string {
	s := strings.ToLower(strings.TrimSpace(p.Surface))
	if s == "" {
		return "auth"
	}
	return s
}

func (p ThrottlePolicy) ipKey(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:ip:%s", throttleKeyPrefix, p.surface(), ip)
}

func (p ThrottlePolicy) emailKey(hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:email:%s", throttleKeyPrefix, p.surface(), hash)
}

// Throttle enforces a ThrottlePolicy in front of an auth endpoint. A missing
// store or a zeroed policy disables it rather than failing closed, so local
// stacks without Redis still serve logins.
func Throttle(policy ThrottlePolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if policy.PerIP > 0 {
				blocked, err := overLimit(ctx, store, policy.ipKey(ip), policy.Window, policy.PerIP)
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if blocked {
					rejectThrottled(ctx, logg, w, policy, "ip", ip)
					return
				}
			}

			if policy.PerEmail > 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if hash := emailHash(body); hash != "" {
					blocked, err := overLimit(ctx, store, policy.emailKey(hash), policy.Window, policy.PerEmail)
					if err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					}
					if blocked {
						rejectThrottled(ctx, logg, w, policy, "email", hash)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func overLimit(ctx context.Context, store rateLimiterStore, key string, window time.Duration, limit int) (bool, error) {
	if key == "" {
		return false, nil
	}
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, err
	}
	return count > int64(limit), nil
}

func rejectThrottled(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy ThrottlePolicy, scope, subject string) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"surface":        policy.surface(),
			"scope":          scope,
			"subject":        subject,
			"window_seconds": int(policy.Window.Seconds()),
		})
		logg.Warn(logCtx, "auth.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// emailHash pulls the email field out of a JSON body and hashes it. Bodies
// that do not parse count only against the IP limit.
func emailHash(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
