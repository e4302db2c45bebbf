package payments

import (
	"context"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/mpesa"
)

// MpesaGateway drives STK Push prompts.
type MpesaGateway struct {
	client *mpesa.Client
}

func NewMpesaGateway(client *mpesa.Client) *MpesaGateway {
	return &MpesaGateway{client: client}
}

func (g *MpesaGateway) Provider() enums.PaymentMethod { return enums.PaymentMethodMpesa }

func (g *MpesaGateway) Initialize(ctx context.Context, req InitRequest) (*InitResult, error) {
	resp, err := g.client.STKPush(ctx, mpesa.STKPushRequest{
		Amount:           req.Amount,
		Phone:            req.Phone,
		CallbackURL:      req.CallbackURL,
		AccountReference: req.OrderID.String(),
		Description:      req.Description,
	})
	if err != nil {
		return nil, err
	}
	return &InitResult{
		Reference:       resp.CheckoutRequestID,
		Status:          VerifyPending,
		CustomerMessage: resp.CustomerMessage,
	}, nil
}

func (g *MpesaGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	resp, err := g.client.Query(ctx, reference)
	if err != nil {
		return nil, err
	}
	result := &VerifyResult{Reference: reference, Reason: resp.ResultDesc}
	switch {
	case resp.Pending():
		result.Status = VerifyPending
		result.Reason = resp.ErrorMessage
	default:
		result.Status = MpesaResultStatus(resp.ResultCode)
	}
	return result, nil
}

// MpesaResultStatus maps an STK result code, shared by query and callback.
func MpesaResultStatus(code string) VerifyStatus {
	switch code {
	case mpesa.ResultSuccess:
		return VerifyCompleted
	case mpesa.ResultCancelled:
		return VerifyCancelled
	case mpesa.ResultTimeout:
		return VerifyTimeout
	}
	return VerifyFailed
}
