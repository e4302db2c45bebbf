package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type stubOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

func newStubOrders(orders ...*models.Order) *stubOrders {
	s := &stubOrders{orders: map[uuid.UUID]*models.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *stubOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		return o, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrders) GetByGatewayReference(_ context.Context, reference string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.GatewayReference != nil && *o.GatewayReference == reference {
			return o, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrders) SetGatewayReference(_ context.Context, id uuid.UUID, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := reference
	s.orders[id].GatewayReference = &ref
	return nil
}

type stubCredentials struct{ settings *models.PaymentSettings }

func (s stubCredentials) Credentials(_ context.Context, _ uuid.UUID) (*models.PaymentSettings, error) {
	return s.settings, nil
}

type recordedMetrics struct {
	gateway       []string
	verifications []string
}

func (m *recordedMetrics) ObserveGateway(provider, operation string, err error, _ time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gateway = append(m.gateway, provider+":"+operation+":"+outcome)
}

func (m *recordedMetrics) IncVerification(provider, status string) {
	m.verifications = append(m.verifications, provider+":"+status)
}

type providerStub struct {
	mu          sync.Mutex
	stkBody     map[string]any
	stkStatus   int
	stkResponse string
	queryStatus int
	queryBody   string
	submitBody  map[string]any
	statusBody  string
}

func (p *providerStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"access_token":"daraja-token","expires_in":"3599"}`)
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&p.stkBody)
		if p.stkStatus != 0 {
			w.WriteHeader(p.stkStatus)
		}
		body := p.stkResponse
		if body == "" {
			body = `{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Accepted","CustomerMessage":"Check your phone"}`
		}
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.queryStatus != 0 {
			w.WriteHeader(p.queryStatus)
		}
		_, _ = io.WriteString(w, p.queryBody)
	})
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"token":"pesapal-token","expiryDate":"2099-01-01T00:00:00Z","status":"200"}`)
	})
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&p.submitBody)
		_, _ = io.WriteString(w, `{"order_tracking_id":"trk-1","merchant_reference":"ref","redirect_url":"https://pay.example/redirect","status":"200"}`)
	})
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		_, _ = io.WriteString(w, p.statusBody)
	})
	return mux
}

type harness struct {
	svc      Service
	orders   *stubOrders
	provider *providerStub
	metrics  *recordedMetrics
}

func newHarness(t *testing.T, settings *models.PaymentSettings, orders ...*models.Order) *harness {
	t.Helper()
	provider := &providerStub{}
	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	factory := NewClientFactory(srv.Client())
	factory.MpesaBaseURL = srv.URL
	factory.PesapalBaseURL = srv.URL

	h := &harness{orders: newStubOrders(orders...), provider: provider, metrics: &recordedMetrics{}}
	svc, err := NewService(Deps{
		Orders:      h.orders,
		Credentials: stubCredentials{settings: settings},
		Gateways:    factory,
		Metrics:     h.metrics,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config: config.PaymentsConfig{
			CallbackBaseURL:    "https://api.example.com/",
			ReturnURL:          "https://app.example.com/payment/callback",
			MpesaCallbackToken: "s3cret",
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func fullSettings() *models.PaymentSettings {
	return &models.PaymentSettings{
		RestaurantID:          uuid.New(),
		MpesaConsumerKey:      "ck",
		MpesaConsumerSecret:   "cs",
		MpesaShortcode:        "174379",
		MpesaPasskey:          "pk",
		PesapalConsumerKey:    "pck",
		PesapalConsumerSecret: "pcs",
		PesapalIPNID:          "ipn-1",
	}
}

func newOrder(method enums.PaymentMethod) *models.Order {
	phone := "0712345678"
	email := "diner@example.com"
	name := "Wanjiru Kamau"
	return &models.Order{
		ID:            uuid.New(),
		RestaurantID:  uuid.New(),
		OwnerID:       uuid.New(),
		PaymentMethod: method,
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusPending,
		TotalAmount:   decimal.RequireFromString("830.40"),
		Currency:      "KES",
		CustomerPhone: &phone,
		CustomerEmail: &email,
		CustomerName:  &name,
	}
}

func TestInitializeMpesaStoresReference(t *testing.T) {
	order := newOrder(enums.PaymentMethodMpesa)
	h := newHarness(t, fullSettings(), order)

	result, err := h.svc.Initialize(context.Background(), enums.PaymentMethodMpesa, InitializeInput{OrderID: order.ID})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if result.Reference != "ws_CO_1" || result.Status != VerifyPending {
		t.Fatalf("unexpected result: %+v", result)
	}
	if order.GatewayReference == nil || *order.GatewayReference != "ws_CO_1" {
		t.Fatalf("gateway reference not stored: %v", order.GatewayReference)
	}

	body := h.provider.stkBody
	if body["CallBackURL"] != "https://api.example.com/api/v1/webhooks/mpesa?token=s3cret" {
		t.Fatalf("unexpected callback url %v", body["CallBackURL"])
	}
	if body["PhoneNumber"] != "254712345678" {
		t.Fatalf("phone not normalized: %v", body["PhoneNumber"])
	}
	if body["Amount"] != float64(831) {
		t.Fatalf("amount should be rounded up to whole shillings, got %v", body["Amount"])
	}
	if len(h.metrics.gateway) != 1 || h.metrics.gateway[0] != "mpesa:initialize:ok" {
		t.Fatalf("unexpected gateway metrics %v", h.metrics.gateway)
	}
}

func TestInitializeSurfacesProviderMessage(t *testing.T) {
	order := newOrder(enums.PaymentMethodMpesa)
	h := newHarness(t, fullSettings(), order)
	h.provider.stkStatus = http.StatusBadRequest
	h.provider.stkResponse = `{"requestId":"r-1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`

	_, err := h.svc.Initialize(context.Background(), enums.PaymentMethodMpesa, InitializeInput{OrderID: order.ID})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeGateway {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if typed.Message() != "Bad Request - Invalid Amount" {
		t.Fatalf("provider message lost: %q", typed.Message())
	}
	if order.GatewayReference != nil {
		t.Fatal("failed initialize must not store a reference")
	}
	if h.metrics.gateway[0] != "mpesa:initialize:error" {
		t.Fatalf("unexpected gateway metrics %v", h.metrics.gateway)
	}
}

func TestInitializeRejectsUnpayableOrders(t *testing.T) {
	paid := newOrder(enums.PaymentMethodMpesa)
	paid.PaymentStatus = enums.PaymentStatusCompleted
	paid.OrderStatus = enums.OrderStatusConfirmed
	cancelled := newOrder(enums.PaymentMethodMpesa)
	cancelled.OrderStatus = enums.OrderStatusCancelled
	pesapalOrder := newOrder(enums.PaymentMethodPesapal)
	h := newHarness(t, fullSettings(), paid, cancelled, pesapalOrder)

	tests := []struct {
		name   string
		method enums.PaymentMethod
		id     uuid.UUID
		code   pkgerrors.Code
	}{
		{"already paid", enums.PaymentMethodMpesa, paid.ID, pkgerrors.CodeStateConflict},
		{"cancelled", enums.PaymentMethodMpesa, cancelled.ID, pkgerrors.CodeStateConflict},
		{"method mismatch", enums.PaymentMethodMpesa, pesapalOrder.ID, pkgerrors.CodeValidation},
		{"cash", enums.PaymentMethodCash, paid.ID, pkgerrors.CodeValidation},
		{"missing order", enums.PaymentMethodMpesa, uuid.New(), pkgerrors.CodeNotFound},
		{"no order id", enums.PaymentMethodMpesa, uuid.Nil, pkgerrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Initialize(context.Background(), tt.method, InitializeInput{OrderID: tt.id})
			if got := pkgerrors.CodeOf(err); got != tt.code {
				t.Fatalf("expected %s, got %s (%v)", tt.code, got, err)
			}
		})
	}
}

func TestInitializeWithoutCredentialsIsGatewayError(t *testing.T) {
	order := newOrder(enums.PaymentMethodMpesa)
	h := newHarness(t, &models.PaymentSettings{RestaurantID: order.RestaurantID}, order)

	_, err := h.svc.Initialize(context.Background(), enums.PaymentMethodMpesa, InitializeInput{OrderID: order.ID})
	if got := pkgerrors.CodeOf(err); got != pkgerrors.CodeGateway {
		t.Fatalf("expected gateway error, got %s (%v)", got, err)
	}
}

func TestVerifyMpesaMapsQueryResults(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   VerifyStatus
	}{
		{"success", 0, `{"ResponseCode":"0","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`, VerifyCompleted},
		{"cancelled", 0, `{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`, VerifyCancelled},
		{"timeout", 0, `{"ResponseCode":"0","ResultCode":"1037","ResultDesc":"DS timeout user cannot be reached"}`, VerifyTimeout},
		{"insufficient funds", 0, `{"ResponseCode":"0","ResultCode":"1","ResultDesc":"The balance is insufficient"}`, VerifyFailed},
		{"still processing", http.StatusInternalServerError, `{"errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`, VerifyPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := newOrder(enums.PaymentMethodMpesa)
			ref := "ws_CO_9"
			order.GatewayReference = &ref
			h := newHarness(t, fullSettings(), order)
			h.provider.queryStatus = tt.status
			h.provider.queryBody = tt.body

			result, err := h.svc.Verify(context.Background(), enums.PaymentMethodMpesa, ref)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if result.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, result.Status)
			}
			if len(h.metrics.verifications) != 1 || h.metrics.verifications[0] != "mpesa:"+string(tt.want) {
				t.Fatalf("unexpected verification metrics %v", h.metrics.verifications)
			}
		})
	}
}

func TestInitializeAndVerifyPesapal(t *testing.T) {
	order := newOrder(enums.PaymentMethodPesapal)
	h := newHarness(t, fullSettings(), order)

	result, err := h.svc.Initialize(context.Background(), enums.PaymentMethodPesapal, InitializeInput{OrderID: order.ID})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if result.RedirectURL != "https://pay.example/redirect" || result.Reference != "trk-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := h.provider.submitBody["callback_url"]; got != "https://app.example.com/payment/callback?provider=pesapal" {
		t.Fatalf("unexpected callback url %v", got)
	}
	billing, _ := h.provider.submitBody["billing_address"].(map[string]any)
	if billing["first_name"] != "Wanjiru" || billing["last_name"] != "Kamau" {
		t.Fatalf("unexpected billing address %v", billing)
	}

	h.provider.statusBody = `{"status_code":1,"confirmation_code":"QK71ABC","payment_status_description":"Completed","status":"200"}`
	verified, err := h.svc.Verify(context.Background(), enums.PaymentMethodPesapal, "trk-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != VerifyCompleted || verified.ReceiptNumber != "QK71ABC" {
		t.Fatalf("unexpected verify result %+v", verified)
	}

	_, err = h.svc.Verify(context.Background(), enums.PaymentMethodMpesa, "trk-1")
	if got := pkgerrors.CodeOf(err); got != pkgerrors.CodeValidation {
		t.Fatalf("provider mismatch should be a validation error, got %s", got)
	}
}

func TestStatusMappings(t *testing.T) {
	pesapalCases := map[int]VerifyStatus{0: VerifyPending, 1: VerifyCompleted, 2: VerifyFailed, 3: VerifyCancelled, 7: VerifyPending}
	for code, want := range pesapalCases {
		if got := PesapalStatus(code); got != want {
			t.Fatalf("pesapal %d: expected %s, got %s", code, want, got)
		}
	}
	if s, ok := VerifyCancelled.PaymentStatus(); !ok || s != enums.PaymentStatusFailed {
		t.Fatalf("cancelled should map to failed, got %s %v", s, ok)
	}
	if _, ok := VerifyTimeout.PaymentStatus(); ok {
		t.Fatal("timeout carries no payment outcome")
	}
}

func TestClientFactoryReusesGateways(t *testing.T) {
	factory := NewClientFactory(http.DefaultClient)
	settings := fullSettings()

	first, err := factory.Gateway(enums.PaymentMethodMpesa, settings)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	second, _ := factory.Gateway(enums.PaymentMethodMpesa, settings)
	if first != second {
		t.Fatal("unchanged settings should reuse the gateway")
	}
	settings.UpdatedAt = time.Now()
	third, _ := factory.Gateway(enums.PaymentMethodMpesa, settings)
	if third == first {
		t.Fatal("updated settings should build a new gateway")
	}
	if len(factory.cache) != 1 {
		t.Fatalf("credential edits must replace the cached gateway, cache has %d entries", len(factory.cache))
	}
	if fourth, _ := factory.Gateway(enums.PaymentMethodMpesa, settings); fourth != third {
		t.Fatal("the rebuilt gateway should be reused")
	}
	if _, err := factory.Gateway(enums.PaymentMethodCash, settings); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("cash has no gateway, got %v", err)
	}
}
