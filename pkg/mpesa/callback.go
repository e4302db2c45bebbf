package mpesa

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// CallbackEnvelope is the body Daraja POSTs to the STK callback URL.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback carries the final outcome of one prompt.
type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []CallbackItem `json:"Item"`
	} `json:"CallbackMetadata,omitempty"`
}

// CallbackItem is one Name/Value pair of the callback metadata.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// CallbackDetails are the typed metadata fields of a successful callback.
type CallbackDetails struct {
	Amount          *decimal.Decimal
	ReceiptNumber   string
	TransactionDate string
	PhoneNumber     string
}

// Succeeded reports a paid prompt.
func (cb STKCallback) Succeeded() bool {
	return cb.ResultCode == 0
}

// ResultCodeString returns the result code in the same form as STK query.
func (cb STKCallback) ResultCodeString() string {
	return strconv.Itoa(cb.ResultCode)
}

// Details extracts Amount, MpesaReceiptNumber, TransactionDate and PhoneNumber.
func (cb STKCallback) Details() CallbackDetails {
	var out CallbackDetails
	if cb.CallbackMetadata == nil {
		return out
	}
	for _, item := range cb.CallbackMetadata.Item {
		value := rawString(item.Value)
		switch item.Name {
		case "Amount":
			if amount, err := decimal.NewFromString(value); err == nil {
				out.Amount = &amount
			}
		case "MpesaReceiptNumber":
			out.ReceiptNumber = value
		case "TransactionDate":
			out.TransactionDate = value
		case "PhoneNumber":
			out.PhoneNumber = value
		}
	}
	return out
}

// rawString renders a JSON scalar (string or number) without quotes.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}
