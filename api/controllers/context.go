package controllers

import (
	"net/http"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/google/uuid"
)

func ownerFromRequest(r *http.Request) (uuid.UUID, error) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing")
	}
	return ownerID, nil
}
