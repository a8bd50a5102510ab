package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/settlecore-backend/api/responses"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// AdminRateLimitPolicy defines the throttling parameters for the privileged
// surface. Step-up confirmations carry re-entered passwords, so the counters
// bound how fast a stolen admin token can grind through guesses.
type AdminRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	adminLimit int
}

// NewAdminRateLimitPolicy builds a policy with the supplied window and limits.
func NewAdminRateLimitPolicy(name string, window time.Duration, ipLimit, adminLimit int) AdminRateLimitPolicy {
	return AdminRateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		adminLimit: adminLimit,
	}
}

func (p AdminRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.adminLimit > 0)
}

func (p AdminRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "admin"
	}
	return p.name
}

func (p AdminRateLimitPolicy) ipKey(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("rl:ip:%s:%s", p.normalizedName(), ip)
}

func (p AdminRateLimitPolicy) adminKey(actorID string) string {
	if actorID == "" {
		return ""
	}
	return fmt.Sprintf("rl:admin:%s:%s", p.normalizedName(), actorID)
}

// AdminRateLimit enforces per-IP and per-actor counters on privileged routes.
// It runs after Auth, so the actor id comes from the request context.
func AdminRateLimit(policy AdminRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if policy.ipLimit > 0 {
				if key := policy.ipKey(ip); key != "" {
					if allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.ipLimit)); err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					} else if !allowed {
						respondRateLimited(ctx, logg, w, policy, "ip", ip, "", count, policy.ipLimit)
						return
					}
				}
			}

			if policy.adminLimit > 0 {
				actorID := UserIDFromContext(ctx)
				if key := policy.adminKey(actorID); key != "" {
					if allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.adminLimit)); err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					} else if !allowed {
						respondRateLimited(ctx, logg, w, policy, "admin", "", actorID, count, policy.adminLimit)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, store rateLimiterStore, key string, window time.Duration, limit int64) (bool, int64, error) {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AdminRateLimitPolicy, scope, ip, actorID string, count int64, limit int) {
	if logg != nil {
		fields := map[string]any{
			"scope":          scope,
			"policy":         policy.normalizedName(),
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		}
		if ip != "" {
			fields["ip"] = ip
		}
		if actorID != "" {
			fields["actor_id"] = actorID
		}
		logCtx := logg.WithFields(ctx, fields)
		logg.Warn(logCtx, "admin.rate_limit.blocked")
	}
	err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded")
	responses.WriteError(ctx, nil, w, err)
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
