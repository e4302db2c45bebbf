package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError writes the {error:{code,message,details}} envelope for err.
// Untyped errors become INTERNAL_ERROR and never leak their text.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed, meta := classify(err)
	logFailure(ctx, logg, err, typed, meta)

	apiErr := types.APIError{
		Code:    string(typed.Code()),
		Message: typed.PublicMessage(),
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

// WriteFunctionSuccess writes the {success:true,data} server function envelope.
func WriteFunctionSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, types.FunctionEnvelope{Success: true, Data: data})
}

// WriteFunctionError writes the {success:false,error} server function envelope
// with the status derived from the error code.
func WriteFunctionError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed, meta := classify(err)
	logFailure(ctx, logg, err, typed, meta)
	writeJSON(w, meta.HTTPStatus, types.FunctionEnvelope{
		Success: false,
		Error:   typed.PublicMessage(),
		Code:    string(typed.Code()),
	})
}

func classify(err error) (*pkgerrors.Error, pkgerrors.Metadata) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	return typed, pkgerrors.MetadataFor(typed.Code())
}

// logFailure records client mistakes at warn and server faults at error.
func logFailure(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, meta pkgerrors.Metadata) {
	if logg == nil {
		return
	}
	fields := pkgerrors.Dump(err).Fields()
	fields["status"] = meta.HTTPStatus
	if details, ok := typed.Details().(map[string]any); ok {
		if step, ok := details["step"]; ok {
			fields["step"] = step
		}
	}
	ctx = logg.WithFields(ctx, fields)

	if meta.HTTPStatus < http.StatusInternalServerError {
		logg.Warn(ctx, "request.rejected")
		return
	}
	logg.Error(ctx, "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
