package venue

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestReconnectPolicy_DelaySchedule(t *testing.T) {
	policy := DefaultReconnectPolicy()

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first-attempt", 0, time.Second},
		{"second-attempt", 1, 2 * time.Second},
		{"third-attempt", 2, 4 * time.Second},
		{"fourth-attempt", 3, 8 * time.Second},
		{"fifth-attempt", 4, 16 * time.Second},
		{"capped-at-max", 5, 30 * time.Second},
		{"stays-capped", 9, 30 * time.Second},
		{"negative-clamped", -1, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Delay(tt.attempt)
			if got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestReconnectPolicy_RunExhaustsAttempts(t *testing.T) {
	policy := ReconnectPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
	}

	attempts := 0
	err := policy.Run(context.Background(), zap.NewNop(), func(context.Context) error {
		attempts++
		return errors.New("dial refused")
	})

	if !errors.Is(err, ErrMaxRetries) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestReconnectPolicy_RunSucceedsMidway(t *testing.T) {
	policy := ReconnectPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  5,
	}

	attempts := 0
	err := policy.Run(context.Background(), zap.NewNop(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dial refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestReconnectPolicy_RunCancellable(t *testing.T) {
	policy := ReconnectPolicy{
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2,
		MaxAttempts:  10,
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- policy.Run(ctx, zap.NewNop(), func(context.Context) error {
			t.Error("connect should not be reached before the first delay")
			return nil
		})
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
