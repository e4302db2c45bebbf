package mpesa

import (
	"encoding/json"
	"testing"
)

func TestCallbackDetails(t *testing.T) {
	raw := `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":250.00},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"Balance"},{"Name":"TransactionDate","Value":20260301123110},{"Name":"PhoneNumber","Value":254712345678}]}}}}`

	var env CallbackEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cb := env.Body.STKCallback
	if !cb.Succeeded() || cb.ResultCodeString() != "0" {
		t.Fatalf("expected success, got %+v", cb)
	}
	d := cb.Details()
	if d.Amount == nil || d.Amount.StringFixed(2) != "250.00" {
		t.Fatalf("unexpected amount %v", d.Amount)
	}
	if d.ReceiptNumber != "NLJ7RT61SV" || d.PhoneNumber != "254712345678" || d.TransactionDate != "20260301123110" {
		t.Fatalf("unexpected details %+v", d)
	}
}

func TestCallbackWithoutMetadata(t *testing.T) {
	raw := `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`
	var env CallbackEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cb := env.Body.STKCallback
	if cb.Succeeded() || cb.ResultCodeString() != ResultCancelled {
		t.Fatalf("unexpected callback %+v", cb)
	}
	if d := cb.Details(); d.Amount != nil || d.ReceiptNumber != "" {
		t.Fatalf("expected empty details, got %+v", d)
	}
}
