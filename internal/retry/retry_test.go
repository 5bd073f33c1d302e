package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:    maxRetries,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 4 * time.Millisecond,
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := Config{RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{64, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRun_SucceedsAfterRetries(t *testing.T) {
	var retries uint32
	state := &State{Retries: &retries}

	attempts := 0
	err := Run(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}, fastConfig(5), state, nil)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if retries != 2 {
		t.Errorf("retries counter = %d, want 2", retries)
	}
	if state.CurrentRetries != 0 {
		t.Errorf("CurrentRetries = %d, want reset to 0", state.CurrentRetries)
	}
}

func TestRun_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	err := Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return errTransient
	}, fastConfig(2), nil, nil)

	if !errors.Is(err, errTransient) {
		t.Fatalf("Run() error = %v, want wrapping %v", err, errTransient)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 + 2 retries)", attempts)
	}
}

func TestRun_RetriesDisabled(t *testing.T) {
	attempts := 0
	err := Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return errTransient
	}, DefaultConfig(), nil, nil)

	if err != errTransient {
		t.Errorf("Run() error = %v, want %v unwrapped", err, errTransient)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRun_PredicateStopsRetry(t *testing.T) {
	errFatal := errors.New("fatal")

	attempts := 0
	err := Run(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errTransient
		}
		return errFatal
	}, fastConfig(5), nil, func(err error) bool {
		return errors.Is(err, errTransient)
	})

	if err != errFatal {
		t.Errorf("Run() error = %v, want %v", err, errFatal)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRun_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{MaxRetries: 5, RetryDelay: time.Hour, MaxRetryDelay: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, func(ctx context.Context) error {
			return errTransient
		}, cfg, nil, nil)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Run(ctx, func(ctx context.Context) error {
		called = true
		return nil
	}, fastConfig(1), nil, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn called with a cancelled context")
	}
}
