package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/tableside-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/google/uuid"
)

// CartSessionHeader identifies one customer device's carts.
const CartSessionHeader = "X-Cart-Session"

// CartSession requires a UUID X-Cart-Session header and stores its canonical form.
func CartSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(CartSessionHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, CartSessionHeader+" header required"))
				return
			}
			session, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, CartSessionHeader+" must be a uuid"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCartSession(r.Context(), session.String())))
		})
	}
}
