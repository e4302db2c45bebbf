package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/tableside-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// ServiceKeyHeader authenticates privileged server function calls.
const ServiceKeyHeader = "X-Service-Key"

// ServiceKey guards privileged server functions. Failures use the function
// envelope because only function routes sit behind it.
func ServiceKey(key string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(key))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get(ServiceKeyHeader)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(expected, got) != 1 {
				responses.WriteFunctionError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid service key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
