package payments

import (
	"context"
	"strings"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/pesapal"
)

// PesapalGateway submits hosted-checkout orders.
type PesapalGateway struct {
	client *pesapal.Client
}

func NewPesapalGateway(client *pesapal.Client) *PesapalGateway {
	return &PesapalGateway{client: client}
}

func (g *PesapalGateway) Provider() enums.PaymentMethod { return enums.PaymentMethodPesapal }

func (g *PesapalGateway) Initialize(ctx context.Context, req InitRequest) (*InitResult, error) {
	first, last := splitName(req.CustomerName)
	resp, err := g.client.SubmitOrder(ctx, pesapal.OrderRequest{
		ID:          req.OrderID.String(),
		Currency:    req.Currency,
		Amount:      req.Amount,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		BillingAddress: pesapal.BillingAddress{
			EmailAddress: req.Email,
			PhoneNumber:  req.Phone,
			FirstName:    first,
			LastName:     last,
		},
	})
	if err != nil {
		return nil, err
	}
	return &InitResult{
		Reference:   resp.OrderTrackingID,
		Status:      VerifyPending,
		RedirectURL: resp.RedirectURL,
	}, nil
}

func (g *PesapalGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	status, err := g.client.GetTransactionStatus(ctx, reference)
	if err != nil {
		return nil, err
	}
	reason := status.PaymentStatusDescription
	if status.Description != "" {
		reason = status.Description
	}
	return &VerifyResult{
		Reference:     reference,
		Status:        PesapalStatus(status.StatusCode),
		Reason:        reason,
		ReceiptNumber: status.ConfirmationCode,
	}, nil
}

// PesapalStatus maps a GetTransactionStatus status_code.
func PesapalStatus(code int) VerifyStatus {
	switch code {
	case pesapal.StatusCompleted:
		return VerifyCompleted
	case pesapal.StatusFailed:
		return VerifyFailed
	case pesapal.StatusReversed:
		return VerifyCancelled
	}
	return VerifyPending
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
