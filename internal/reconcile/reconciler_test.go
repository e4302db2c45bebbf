package reconcile

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/internal/payments"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

type stubVerifier struct {
	calls  int
	verify func(ctx context.Context, reference string) (*payments.VerifyResult, error)
}

func (s *stubVerifier) Verify(ctx context.Context, _ enums.PaymentMethod, reference string) (*payments.VerifyResult, error) {
	s.calls++
	return s.verify(ctx, reference)
}

type stubUpdater struct {
	updates []StatusUpdate
	err     error
}

func (s *stubUpdater) UpdateOrderStatus(_ context.Context, update StatusUpdate) error {
	s.updates = append(s.updates, update)
	return s.err
}

func status(s payments.VerifyStatus, reason string) func(context.Context, string) (*payments.VerifyResult, error) {
	return func(_ context.Context, reference string) (*payments.VerifyResult, error) {
		return &payments.VerifyResult{Reference: reference, Status: s, Reason: reason}, nil
	}
}

func newReconciler(t *testing.T, v Verifier, u OrderUpdater, timeout time.Duration) *Reconciler {
	t.Helper()
	r, err := New(v, u, Options{VerifyTimeout: timeout, Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard})})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r
}

func TestCompletedPaymentConfirmsOrder(t *testing.T) {
	verifier := &stubVerifier{verify: status(payments.VerifyCompleted, "")}
	updater := &stubUpdater{}
	r := newReconciler(t, verifier, updater, 0)
	if r.State() != StateIdle {
		t.Fatalf("expected idle, got %s", r.State())
	}

	out := r.Reconcile(context.Background(), enums.PaymentMethodMpesa, "ws_CO_1")
	if out.State != StateSucceeded {
		t.Fatalf("expected success, got %+v", out)
	}
	want := StatusUpdate{Reference: "ws_CO_1", PaymentStatus: "paid", OrderStatus: "confirmed"}
	if len(updater.updates) != 1 || updater.updates[0] != want {
		t.Fatalf("unexpected updates %+v", updater.updates)
	}

	again := r.Reconcile(context.Background(), enums.PaymentMethodMpesa, "ws_CO_1")
	if again.State != StateSucceeded || verifier.calls != 1 {
		t.Fatalf("a succeeded reference must not be verified again (calls=%d)", verifier.calls)
	}
}

func TestFailedAndCancelledKeepProviderReason(t *testing.T) {
	for _, s := range []payments.VerifyStatus{payments.VerifyFailed, payments.VerifyCancelled} {
		updater := &stubUpdater{}
		r := newReconciler(t, &stubVerifier{verify: status(s, "Request cancelled by user")}, updater, 0)
		out := r.Reconcile(context.Background(), enums.PaymentMethodMpesa, "ws_CO_2")
		if out.State != StateFailed || out.Message != "Request cancelled by user" {
			t.Fatalf("%s: unexpected outcome %+v", s, out)
		}
		if len(updater.updates) != 0 {
			t.Fatalf("%s: no order write expected", s)
		}
	}
}

func TestPendingAndTimeoutAreVerificationPending(t *testing.T) {
	for _, s := range []payments.VerifyStatus{payments.VerifyPending, payments.VerifyTimeout} {
		updater := &stubUpdater{}
		r := newReconciler(t, &stubVerifier{verify: status(s, "")}, updater, 0)
		out := r.Reconcile(context.Background(), enums.PaymentMethodPesapal, "trk-1")
		if out.State != StateFailed || out.Code != pkgerrors.CodePaymentPending {
			t.Fatalf("%s: expected pending failure, got %+v", s, out)
		}
		if len(updater.updates) != 0 {
			t.Fatalf("%s: no order write expected", s)
		}
	}
}

func TestOrderUpdateFailureHasDistinctMessage(t *testing.T) {
	updater := &stubUpdater{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	r := newReconciler(t, &stubVerifier{verify: status(payments.VerifyCompleted, "")}, updater, 0)

	out := r.Reconcile(context.Background(), enums.PaymentMethodMpesa, "ws_CO_3")
	if out.State != StateFailed {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.Message != "Payment verified, but order update failed: order not found" {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestVerifyDeadlineSurfacesAsPending(t *testing.T) {
	verifier := &stubVerifier{verify: func(ctx context.Context, _ string) (*payments.VerifyResult, error) {
		<-ctx.Done()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "M-Pesa is unreachable")
	}}
	r := newReconciler(t, verifier, &stubUpdater{}, 20*time.Millisecond)

	start := time.Now()
	out := r.Reconcile(context.Background(), enums.PaymentMethodMpesa, "ws_CO_4")
	if time.Since(start) > time.Second {
		t.Fatal("verify deadline was not applied")
	}
	if out.Code != pkgerrors.CodePaymentPending {
		t.Fatalf("expected pending, got %+v", out)
	}
}

func TestRetryUsesLastReference(t *testing.T) {
	attempt := 0
	verifier := &stubVerifier{verify: func(_ context.Context, reference string) (*payments.VerifyResult, error) {
		attempt++
		if attempt == 1 {
			return nil, pkgerrors.New(pkgerrors.CodeGateway, "Invalid Access Token")
		}
		return &payments.VerifyResult{Reference: reference, Status: payments.VerifyCompleted}, nil
	}}
	updater := &stubUpdater{}
	r := newReconciler(t, verifier, updater, 0)

	if out := r.Retry(context.Background()); out.Code != pkgerrors.CodeValidation {
		t.Fatalf("retry before any reference should fail validation, got %+v", out)
	}

	first := r.Reconcile(context.Background(), enums.PaymentMethodMpesa, "ws_CO_5")
	if first.State != StateFailed || first.Message != "Invalid Access Token" || first.Code != pkgerrors.CodeGateway {
		t.Fatalf("unexpected first outcome %+v", first)
	}
	second := r.Retry(context.Background())
	if second.State != StateSucceeded || second.Reference != "ws_CO_5" {
		t.Fatalf("unexpected retry outcome %+v", second)
	}
	if r.Last() != second {
		t.Fatal("last outcome not recorded")
	}
}

func TestRejectsBadInput(t *testing.T) {
	r := newReconciler(t, &stubVerifier{verify: status(payments.VerifyCompleted, "")}, &stubUpdater{}, 0)
	if out := r.Reconcile(context.Background(), enums.PaymentMethodMpesa, "  "); out.Code != pkgerrors.CodeValidation {
		t.Fatalf("blank reference: %+v", out)
	}
	if out := r.Reconcile(context.Background(), enums.PaymentMethodCash, "x"); out.Code != pkgerrors.CodeValidation {
		t.Fatalf("cash provider: %+v", out)
	}
	if _, err := New(nil, &stubUpdater{}, Options{}); err == nil {
		t.Fatal("expected constructor error")
	}
}

type stubPrivileged struct {
	got orders.PrivilegedUpdate
	err error
}

func (s *stubPrivileged) ApplyPrivilegedUpdate(_ context.Context, update orders.PrivilegedUpdate) (*models.Order, error) {
	s.got = update
	return &models.Order{}, s.err
}

func TestOrdersUpdaterAcceptsPaidAlias(t *testing.T) {
	stub := &stubPrivileged{}
	err := OrdersUpdater{Orders: stub}.UpdateOrderStatus(context.Background(), StatusUpdate{Reference: "r", PaymentStatus: "paid", OrderStatus: "confirmed"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if stub.got.PaymentStatus == nil || *stub.got.PaymentStatus != enums.PaymentStatusCompleted {
		t.Fatalf("paid should map to completed, got %+v", stub.got)
	}
	if stub.got.OrderStatus == nil || *stub.got.OrderStatus != enums.OrderStatusConfirmed {
		t.Fatalf("unexpected order status %+v", stub.got)
	}

	_, err = ParseStatusUpdate(StatusUpdate{PaymentStatus: "settled"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) || !strings.Contains(err.Error(), "settled") {
		t.Fatalf("expected validation error, got %v", err)
	}

	stub.err = errors.New("db down")
	if err := (OrdersUpdater{Orders: stub}).UpdateOrderStatus(context.Background(), StatusUpdate{Reference: "r", PaymentStatus: "paid"}); err == nil {
		t.Fatal("expected error to propagate")
	}
}
