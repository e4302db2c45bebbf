package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tableside-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/tableside-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	standardReplayTTL = 24 * time.Hour
	checkoutReplayTTL = 7 * 24 * time.Hour
	// reservationTTL bounds how long a crashed request can hold its key.
	reservationTTL = time.Minute
	reservedMarker = "in_flight"
)

type idempotencyPolicy struct {
	method   string
	segments []string
	ttl      time.Duration
}

func newIdempotencyPolicy(method, template string, ttl time.Duration) idempotencyPolicy {
	return idempotencyPolicy{method: method, segments: splitPath(template), ttl: ttl}
}

// matches compares path segment by segment; {param} segments match any value.
func (p idempotencyPolicy) matches(method, path string) bool {
	if p.method != method {
		return false
	}
	segments := splitPath(path)
	if len(segments) != len(p.segments) {
		return false
	}
	for i, want := range p.segments {
		if strings.HasPrefix(want, "{") && strings.HasSuffix(want, "}") {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if segments[i] != want {
			return false
		}
	}
	return true
}

var idempotencyPolicies = []idempotencyPolicy{
	newIdempotencyPolicy(http.MethodPost, "/api/v1/auth/register", standardReplayTTL),
	newIdempotencyPolicy(http.MethodPost, "/api/v1/restaurants", standardReplayTTL),
	newIdempotencyPolicy(http.MethodPost, "/api/v1/orders/{orderId}/mark-paid", standardReplayTTL),
	newIdempotencyPolicy(http.MethodPost, "/api/public/restaurants/{restaurantId}/checkout", checkoutReplayTTL),
}

func policyFor(method, path string) (idempotencyPolicy, bool) {
	for _, policy := range idempotencyPolicies {
		if policy.matches(method, path) {
			return policy, true
		}
	}
	return idempotencyPolicy{}, false
}

// ReplayStore persists reservations and recorded responses.
type ReplayStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type storedResponse struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first response recorded for an Idempotency-Key on
// the routes listed in idempotencyPolicies. The key is reserved before the
// handler runs so concurrent duplicates are refused rather than executed
// twice. Server errors release the key so the client may retry.
func Idempotency(store ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := policyFor(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			requestHash := fingerprint(body)
			key := store.IdempotencyKey(requestScope(r), clientKey)

			reserved, err := store.SetNX(ctx, key, reservedMarker, reservationTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayStored(ctx, store, key, requestHash, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if delErr := store.Del(ctx, key); delErr != nil {
					logError(ctx, logg, "release idempotency key", delErr)
				}
				return
			}

			payload, err := json.Marshal(storedResponse{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				ContentType: capture.Header().Get("Content-Type"),
				RequestHash: requestHash,
			})
			if err != nil {
				logError(ctx, logg, "encode idempotent response", err)
				return
			}
			if err := store.Set(ctx, key, string(payload), policy.ttl); err != nil {
				logError(ctx, logg, "persist idempotent response", err)
			}
		})
	}
}

func replayStored(ctx context.Context, store ReplayStore, key, requestHash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// The reservation expired between SetNX and Get.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotent response"))
		return
	case raw == reservedMarker:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotent response"))
		return
	}
	if stored.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	if decoded, err := base64.StdEncoding.DecodeString(stored.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

// requestScope keeps keys from colliding across owners and cart sessions.
func requestScope(r *http.Request) string {
	principal := CartSessionFromContext(r.Context())
	if id, ok := OwnerIDFromContext(r.Context()); ok {
		principal = "owner:" + id.String()
	}
	return strings.Join([]string{principal, r.Method, r.URL.Path}, "|")
}

func fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
