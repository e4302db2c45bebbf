package webhooks

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/pesapal"
)

// PesapalIPN receives an instant payment notification, as GET query params or
// a JSON body depending on how the IPN URL was registered. The acknowledgement
// status tells Pesapal whether to deliver it again.
func PesapalIPN(svc pesapalHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		notification := pesapal.NotificationFromQuery(r.URL.Query())
		if r.Method == http.MethodPost {
			var body pesapal.Notification
			if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBodyBytes)).Decode(&body); err != nil {
				logg.Error(ctx, "webhook.pesapal.decode_failed", err)
				writeAck(w, notification.Ack(http.StatusInternalServerError))
				return
			}
			notification = body
		}

		ack, err := svc.HandlePesapalIPN(ctx, notification)
		if err != nil {
			logg.Error(ctx, "webhook.pesapal.failed", err)
		}
		writeAck(w, ack)
	}
}
