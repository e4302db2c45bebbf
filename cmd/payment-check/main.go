// Command payment-check confirms one payment reference against a running API,
// the same way the callback page does, and prints the outcome as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/tableside-backend/internal/reconcile"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/functions"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

type checkConfig struct {
	PublicURL     string        `envconfig:"TABLESIDE_PUBLIC_URL" default:"http://localhost:8080"`
	ServiceKey    string        `envconfig:"TABLESIDE_SERVICE_KEY"`
	LogLevel      string        `envconfig:"TABLESIDE_LOG_LEVEL" default:"info"`
	VerifyTimeout time.Duration `envconfig:"TABLESIDE_PAYMENTS_VERIFY_TIMEOUT" default:"30s"`
}

func main() {
	_ = godotenv.Load()

	var cfg checkConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	provider := flag.String("provider", "", "payment provider: mpesa|pesapal")
	reference := flag.String("reference", "", "gateway reference (CheckoutRequestID or OrderTrackingId)")
	baseURL := flag.String("base-url", cfg.PublicURL, "API base url")
	retries := flag.Int("retries", 0, "extra attempts while the payment is still pending; each attempt re-runs verify and, on success, the privileged order update (operator opt-in, default 0)")
	wait := flag.Duration("wait", 10*time.Second, "pause between attempts")
	flag.Parse()

	logg := logger.New(logger.Options{
		ServiceName: "payment-check",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Output:      os.Stderr,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"provider":  *provider,
		"reference": *reference,
		"base_url":  *baseURL,
	})

	method, err := enums.ParsePaymentMethod(*provider)
	if err != nil || !method.IsGateway() {
		fmt.Fprintln(os.Stderr, "-provider must be mpesa or pesapal")
		os.Exit(2)
	}
	if *reference == "" {
		fmt.Fprintln(os.Stderr, "missing -reference")
		os.Exit(2)
	}

	client, err := functions.NewClient(*baseURL,
		functions.WithServiceKey(cfg.ServiceKey),
		functions.WithHTTPClient(&http.Client{Timeout: cfg.VerifyTimeout + 15*time.Second}),
	)
	if err != nil {
		logg.Error(ctx, "failed to build functions client", err)
		os.Exit(2)
	}

	reconciler, err := reconcile.New(client, client, reconcile.Options{VerifyTimeout: cfg.VerifyTimeout, Logger: logg})
	if err != nil {
		logg.Error(ctx, "failed to build reconciler", err)
		os.Exit(2)
	}

	out := reconciler.Reconcile(ctx, method, *reference)
	for attempt := 0; attempt < *retries && out.State == reconcile.StateFailed && pkgerrors.MetadataFor(out.Code).Retryable; attempt++ {
		logg.Info(logg.WithField(ctx, "attempt", attempt+1), "payment_check.retrying")
		time.Sleep(*wait)
		out = reconciler.Retry(ctx)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(out)

	if reconciler.State() != reconcile.StateSucceeded {
		os.Exit(1)
	}
}
