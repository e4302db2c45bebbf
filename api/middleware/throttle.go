package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// ThrottleKey is one counter dimension of a ThrottlePolicy.
type ThrottleKey struct {
	name      string
	limit     int
	needsBody bool
	// extract returns "" when the request carries no value for this dimension.
	extract func(r *http.Request, body []byte) string
}

// ByClientIP counts requests per caller address.
func ByClientIP(limit int) ThrottleKey {
	return ThrottleKey{
		name:  "ip",
		limit: limit,
		extract: func(r *http.Request, _ []byte) string {
			return clientIP(r)
		},
	}
}

// ByJSONField counts requests per value of a top-level string field in the
// JSON body. Values are case-folded and hashed before they reach Redis.
func ByJSONField(field string, limit int) ThrottleKey {
	return ThrottleKey{
		name:      field,
		limit:     limit,
		needsBody: true,
		extract: func(_ *http.Request, body []byte) string {
			var payload map[string]any
			if err := json.Unmarshal(body, &payload); err != nil {
				return ""
			}
			value, _ := payload[field].(string)
			value = strings.ToLower(strings.TrimSpace(value))
			if value == "" {
				return ""
			}
			sum := sha256.Sum256([]byte(value))
			return hex.EncodeToString(sum[:])
		},
	}
}

// ThrottlePolicy applies fixed-window limits to one traffic surface.
type ThrottlePolicy struct {
	name   string
	window time.Duration
	keys   []ThrottleKey
}

func NewThrottlePolicy(name string, window time.Duration, keys ...ThrottleKey) ThrottlePolicy {
	active := make([]ThrottleKey, 0, len(keys))
	for _, key := range keys {
		if key.limit > 0 {
			active = append(active, key)
		}
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return ThrottlePolicy{name: name, window: window, keys: active}
}

func (p ThrottlePolicy) enabled() bool {
	return p.window > 0 && len(p.keys) > 0
}

func (p ThrottlePolicy) needsBody() bool {
	for _, key := range p.keys {
		if key.needsBody {
			return true
		}
	}
	return false
}

func (p ThrottlePolicy) retryAfter() string {
	return strconv.Itoa(int(math.Ceil(p.window.Seconds())))
}

// Throttle rejects requests once any dimension of policy exceeds its limit
// inside the window. It fails closed when the counter store is unreachable.
func Throttle(policy ThrottlePolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if policy.needsBody() {
				var err error
				body, err = io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, key := range policy.keys {
				value := key.extract(r, body)
				if value == "" {
					continue
				}
				scope := policy.name + ":" + key.name + ":" + value
				allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(key.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":    policy.name,
							"dimension": key.name,
							"attempts":  count,
							"limit":     key.limit,
						}), "rate_limit.blocked")
					}
					w.Header().Set("Retry-After", policy.retryAfter())
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, try again shortly"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
