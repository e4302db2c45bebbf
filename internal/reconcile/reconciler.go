// Package reconcile confirms a payment after the customer returns from the
// provider: verify the reference, then apply the privileged status update.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/payments"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// State is where a reconciliation stands.
type State string

const (
	StateIdle      State = "idle"
	StateVerifying State = "verifying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

const (
	DefaultVerifyTimeout = 30 * time.Second

	// Wire values understood by the update-order-status function.
	PaidStatus      = "paid"
	ConfirmedStatus = "confirmed"

	orderUpdateFailedPrefix = "Payment verified, but order update failed: "
	pendingMessage          = "Payment is still being processed. Please try again shortly."
)

// Verifier asks a provider for the outcome of a reference.
type Verifier interface {
	Verify(ctx context.Context, provider enums.PaymentMethod, reference string) (*payments.VerifyResult, error)
}

// StatusUpdate is the privileged order write issued after a verified payment.
type StatusUpdate struct {
	Reference     string `json:"reference"`
	PaymentStatus string `json:"payment_status"`
	OrderStatus   string `json:"order_status"`
}

// OrderUpdater applies a privileged status update.
type OrderUpdater interface {
	UpdateOrderStatus(ctx context.Context, update StatusUpdate) error
}

// Outcome is what the callback page shows.
type Outcome struct {
	State     State               `json:"state"`
	Provider  enums.PaymentMethod `json:"provider"`
	Reference string              `json:"reference"`
	Message   string              `json:"message"`
	Code      pkgerrors.Code      `json:"code,omitempty"`
}

// Options tune a reconciler.
type Options struct {
	VerifyTimeout time.Duration
	Logger        *logger.Logger
}

// Reconciler drives one customer's confirmation. It is safe for concurrent
// use; overlapping calls are serialized.
type Reconciler struct {
	verifier Verifier
	updater  OrderUpdater
	timeout  time.Duration
	logg     *logger.Logger

	run       sync.Mutex
	mu        sync.Mutex
	state     State
	provider  enums.PaymentMethod
	reference string
	last      Outcome
}

// New builds an idle reconciler.
func New(verifier Verifier, updater OrderUpdater, opts Options) (*Reconciler, error) {
	if verifier == nil || updater == nil {
		return nil, fmt.Errorf("reconciler requires a verifier and an order updater")
	}
	timeout := opts.VerifyTimeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	return &Reconciler{
		verifier: verifier,
		updater:  updater,
		timeout:  timeout,
		logg:     opts.Logger,
		state:    StateIdle,
	}, nil
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Last returns the most recent outcome.
func (r *Reconciler) Last() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Reconcile verifies reference and confirms the order on success. A reference
// that already succeeded is not verified again.
func (r *Reconciler) Reconcile(ctx context.Context, provider enums.PaymentMethod, reference string) Outcome {
	r.run.Lock()
	defer r.run.Unlock()

	reference = strings.TrimSpace(reference)
	r.mu.Lock()
	if r.state == StateSucceeded && r.reference == reference && r.provider == provider {
		out := r.last
		r.mu.Unlock()
		return out
	}
	r.provider = provider
	r.reference = reference
	r.state = StateVerifying
	r.mu.Unlock()

	out := r.reconcile(ctx, provider, reference)

	r.mu.Lock()
	r.state = out.State
	r.last = out
	r.mu.Unlock()
	r.log(ctx, out)
	return out
}

// Retry re-runs the last reference. There is no automatic retry loop.
func (r *Reconciler) Retry(ctx context.Context) Outcome {
	r.mu.Lock()
	provider, reference := r.provider, r.reference
	r.mu.Unlock()
	if reference == "" {
		return Outcome{State: StateFailed, Message: "no payment reference to retry", Code: pkgerrors.CodeValidation}
	}
	return r.Reconcile(ctx, provider, reference)
}

func (r *Reconciler) reconcile(ctx context.Context, provider enums.PaymentMethod, reference string) Outcome {
	out := Outcome{Provider: provider, Reference: reference}
	if reference == "" {
		return failed(out, "payment reference is missing", pkgerrors.CodeValidation)
	}
	if !provider.IsGateway() {
		return failed(out, fmt.Sprintf("unsupported payment provider %q", provider), pkgerrors.CodeValidation)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, r.timeout)
	result, err := r.verifier.Verify(verifyCtx, provider, reference)
	expired := errors.Is(verifyCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if expired || errors.Is(err, context.DeadlineExceeded) {
			return failed(out, pendingMessage, pkgerrors.CodePaymentPending)
		}
		return failed(out, messageOf(err), pkgerrors.CodeOf(err))
	}

	switch result.Status {
	case payments.VerifyCompleted:
		update := StatusUpdate{Reference: reference, PaymentStatus: PaidStatus, OrderStatus: ConfirmedStatus}
		if err := r.updater.UpdateOrderStatus(ctx, update); err != nil {
			return failed(out, orderUpdateFailedPrefix+messageOf(err), pkgerrors.CodeOf(err))
		}
		out.State = StateSucceeded
		out.Message = "Payment confirmed"
		return out
	case payments.VerifyFailed, payments.VerifyCancelled:
		reason := strings.TrimSpace(result.Reason)
		if reason == "" {
			reason = "Payment was not completed"
		}
		return failed(out, reason, pkgerrors.CodeGateway)
	default:
		return failed(out, pendingMessage, pkgerrors.CodePaymentPending)
	}
}

func (r *Reconciler) log(ctx context.Context, out Outcome) {
	if r.logg == nil {
		return
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"provider":  string(out.Provider),
		"reference": out.Reference,
		"state":     string(out.State),
	})
	if out.State == StateSucceeded {
		r.logg.Info(ctx, "reconcile.succeeded")
		return
	}
	r.logg.Warn(r.logg.WithField(ctx, "reason", out.Message), "reconcile.failed")
}

func failed(out Outcome, message string, code pkgerrors.Code) Outcome {
	out.State = StateFailed
	out.Message = message
	out.Code = code
	return out
}

func messageOf(err error) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return err.Error()
}

