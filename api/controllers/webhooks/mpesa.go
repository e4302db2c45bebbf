// Package webhooks receives provider-side payment notifications.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/mpesa"
	"github.com/angelmondragon/tableside-backend/pkg/pesapal"
)

const (
	maxWebhookBodyBytes = 1 << 20
	callbackTokenParam  = "token"
)

type mpesaHandler interface {
	HandleMpesaCallback(ctx context.Context, envelope mpesa.CallbackEnvelope, raw map[string]any) (string, error)
}

type pesapalHandler interface {
	HandlePesapalIPN(ctx context.Context, notification pesapal.Notification) (pesapal.Acknowledgement, error)
}

type tokenMatcher func(expected, got string) bool

type mpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = mpesaAck{ResultCode: 0, ResultDesc: "Accepted"}

// MpesaCallback receives the STK push result. Daraja does not retry on our
// answer, so every delivery is acknowledged and failures are only logged.
func MpesaCallback(svc mpesaHandler, callbackToken string, matches tokenMatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if callbackToken != "" && !matches(callbackToken, r.URL.Query().Get(callbackTokenParam)) {
			logg.Warn(ctx, "webhook.mpesa.bad_token")
			writeAck(w, mpesaAck{ResultCode: 1, ResultDesc: "Rejected"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			logg.Error(ctx, "webhook.mpesa.read_failed", err)
			writeAck(w, accepted)
			return
		}
		var envelope mpesa.CallbackEnvelope
		raw := map[string]any{}
		if err := json.Unmarshal(body, &envelope); err != nil {
			logg.Error(ctx, "webhook.mpesa.decode_failed", err)
			writeAck(w, accepted)
			return
		}
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&raw); err != nil {
			raw = map[string]any{}
		}

		outcome, err := svc.HandleMpesaCallback(ctx, envelope, raw)
		if err != nil {
			logg.Error(logg.WithField(ctx, "outcome", outcome), "webhook.mpesa.failed", err)
		} else {
			logg.Info(logg.WithField(ctx, "outcome", outcome), "webhook.mpesa.handled")
		}
		writeAck(w, accepted)
	}
}

func writeAck(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}
