package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	internalorders "github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type stubOrders struct {
	internalorders.Service
	gotOwner  uuid.UUID
	gotOrder  uuid.UUID
	gotStatus enums.OrderStatus
	gotTable  *string
	err       error
}

func (s *stubOrders) UpdateOrderStatus(_ context.Context, ownerID, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	s.gotOwner, s.gotOrder, s.gotStatus = ownerID, orderID, status
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: orderID, OrderStatus: status}, nil
}

func (s *stubOrders) UpdateTableNumber(_ context.Context, ownerID, orderID uuid.UUID, table *string) (*models.Order, error) {
	s.gotOwner, s.gotOrder, s.gotTable = ownerID, orderID, table
	return &models.Order{ID: orderID, TableNumber: table}, nil
}

func ownerRequest(method, target, body string, ownerID, orderID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithOwnerID(ctx, ownerID)
	return req.WithContext(ctx)
}

func TestUpdateStatusPassesOwnerScope(t *testing.T) {
	svc := &stubOrders{}
	ownerID, orderID := uuid.New(), uuid.New()
	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, ownerRequest(http.MethodPatch, "/", `{"status":"preparing"}`, ownerID, orderID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotOwner != ownerID || svc.gotOrder != orderID || svc.gotStatus != enums.OrderStatusPreparing {
		t.Fatalf("unexpected call owner=%s order=%s status=%s", svc.gotOwner, svc.gotOrder, svc.gotStatus)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrders{}
	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, ownerRequest(http.MethodPatch, "/", `{"status":"eaten"}`, uuid.New(), uuid.New()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.gotOrder != uuid.Nil {
		t.Fatal("service must not be called for an invalid status")
	}
}

func TestUpdateStatusForeignOrderIsNotFound(t *testing.T) {
	svc := &stubOrders{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, ownerRequest(http.MethodPatch, "/", `{"status":"ready"}`, uuid.New(), uuid.New()))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("unexpected code %s", payload.Error.Code)
	}
}

func TestUpdateTableBlankClears(t *testing.T) {
	svc := &stubOrders{}
	rec := httptest.NewRecorder()
	UpdateTable(svc, nil).ServeHTTP(rec, ownerRequest(http.MethodPatch, "/", `{"table_number":"  "}`, uuid.New(), uuid.New()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.gotTable != nil {
		t.Fatalf("expected nil table, got %q", *svc.gotTable)
	}
}

func TestListRequiresOwner(t *testing.T) {
	rec := httptest.NewRecorder()
	List(&stubOrders{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
