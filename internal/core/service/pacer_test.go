package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFixedDelay_Wait(t *testing.T) {
	p := NewFixedDelay(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 25*time.Millisecond {
		t.Errorf("first Wait() took %v, want immediate", elapsed)
	}

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Errorf("second Wait() returned after %v, want >= 50ms", elapsed)
	}
}

func TestFixedDelay_Cancelled(t *testing.T) {
	p := NewFixedDelay(time.Hour)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestTokenBucket_Wait(t *testing.T) {
	p := NewTokenBucket(1, 2)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst of 2 took %v", elapsed)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := p.Wait(short); err == nil {
		t.Error("third Wait() within 20ms should fail at 1/s")
	}
}

func TestNoPacing(t *testing.T) {
	if err := (NoPacing{}).Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (NoPacing{}).Wait(ctx); err == nil {
		t.Error("Wait() on cancelled context should fail")
	}
}
