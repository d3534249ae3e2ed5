package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestBudgetReserve(t *testing.T) {
	ctx := context.Background()
	b := NewMonthlyCostBudget(newTestLogger(t), 100, 0)

	if err := b.Reserve(ctx, 60); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	err := b.Reserve(ctx, 50)
	if err == nil {
		t.Fatal("expected second reserve to exceed budget")
	}
	if !apierr.IsCode(err, apierr.CodeBudgetExceeded) {
		t.Fatalf("expected budget_exceeded, got %v", err)
	}
	if got := b.Remaining(); got != 40 {
		t.Fatalf("remaining = %v, want 40", got)
	}
}

func TestBudgetReleaseRestores(t *testing.T) {
	ctx := context.Background()
	b := NewMonthlyCostBudget(newTestLogger(t), 100, 0)

	if err := b.Reserve(ctx, 80); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	b.Release(ctx, 80)
	if err := b.Reserve(ctx, 100); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestBudgetSeededSpend(t *testing.T) {
	ctx := context.Background()
	b := NewMonthlyCostBudget(newTestLogger(t), 100, 90)

	if err := b.Reserve(ctx, 20); err == nil {
		t.Fatal("expected reserve over seeded spend to fail")
	}
	if err := b.Reserve(ctx, 10); err != nil {
		t.Fatalf("reserve within seeded headroom: %v", err)
	}
}

func TestBudgetMonthRollover(t *testing.T) {
	ctx := context.Background()
	b := NewMonthlyCostBudget(newTestLogger(t), 100, 0).(*monthlyCostBudget)

	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	b.month = monthKey(now)

	if err := b.Reserve(ctx, 100); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := b.Reserve(ctx, 1); err == nil {
		t.Fatal("expected exhausted budget")
	}

	now = now.AddDate(0, 1, 0)
	if err := b.Reserve(ctx, 100); err != nil {
		t.Fatalf("reserve after rollover: %v", err)
	}
}

func TestBudgetConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	b := NewMonthlyCostBudget(newTestLogger(t), 100, 0)

	const workers = 20
	var wg sync.WaitGroup
	granted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Reserve(ctx, 10); err == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	n := 0
	for range granted {
		n++
	}
	if n != 10 {
		t.Fatalf("granted %d reservations, want exactly 10", n)
	}
}
