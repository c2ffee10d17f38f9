package observe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/guardrail/observe"
	"github.com/jonwraymond/guardrail/resilience"
)

func ExampleNewObserver() {
	cfg := observe.Config{
		ServiceName: "example-service",
		Version:     "1.0.0",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "none"},
		Metrics:     observe.MetricsConfig{Enabled: false},
		Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
	}

	ctx := context.Background()
	obs, err := observe.NewObserver(ctx, cfg)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer func() {
		_ = obs.Shutdown(ctx)
	}()

	fmt.Println("Observer created successfully")
	// Output:
	// Observer created successfully
}

func ExampleNewObserver_validation() {
	// Missing service name triggers validation error
	cfg := observe.Config{
		ServiceName: "", // Empty - will fail validation
	}

	ctx := context.Background()
	_, err := observe.NewObserver(ctx, cfg)
	if errors.Is(err, observe.ErrMissingServiceName) {
		fmt.Println("Caught: missing service name")
	}
	// Output:
	// Caught: missing service name
}

func ExampleNewLoggerWithWriter() {
	var buf bytes.Buffer
	logger := observe.NewLoggerWithWriter("info", &buf)

	guardLogger := logger.WithGuard(observe.GuardMeta{
		Component: "billing",
		Name:      "charge",
	})
	guardLogger.Info(context.Background(), "charge completed")

	var entry map[string]any
	_ = json.Unmarshal(buf.Bytes(), &entry)
	fmt.Println(entry["guard.id"], entry["msg"])
	// Output:
	// billing.charge charge completed
}

func ExampleMiddlewareFromObserver() {
	ctx := context.Background()
	obs, err := observe.NewObserver(ctx, observe.Config{ServiceName: "example-service"})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer func() {
		_ = obs.Shutdown(ctx)
	}()

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	// The instrumented function drops straight into the resilience primitives.
	guarded := mw.Wrap(observe.GuardMeta{Name: "fetch", Pattern: "retry"},
		func(ctx context.Context) error {
			return nil
		})

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	})
	err = retry.Execute(ctx, guarded)

	fmt.Println("Error:", err)
	// Output:
	// Error: <nil>
}
