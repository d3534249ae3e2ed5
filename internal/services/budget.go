package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
)

// CostBudget guards the monthly spend cap for metered providers. Reserve is
// called with the estimated cost before any network call; two concurrent
// pipelines can never both pass a stale check because the counter is held
// under one lock.
type CostBudget interface {
	// Reserve debits the estimate, or returns a budget_exceeded error and
	// debits nothing.
	Reserve(ctx context.Context, amount float64) error
	// Commit settles a reservation against the actual cost.
	Commit(ctx context.Context, reserved float64, actual float64)
	// Release returns a reservation after a failed call.
	Release(ctx context.Context, amount float64)
	Remaining() float64
}

type monthlyCostBudget struct {
	log *logger.Logger

	mu    sync.Mutex
	cap   float64
	spent float64
	month string

	now func() time.Time
}

// NewMonthlyCostBudget builds the budget counter. seedSpent carries spend
// already persisted for the current month so a restart does not reset the cap.
func NewMonthlyCostBudget(log *logger.Logger, monthlyCap float64, seedSpent float64) CostBudget {
	b := &monthlyCostBudget{
		log:   log.With("service", "CostBudget"),
		cap:   monthlyCap,
		spent: seedSpent,
		now:   time.Now,
	}
	b.month = monthKey(b.now())
	return b
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (b *monthlyCostBudget) rolloverLocked() {
	current := monthKey(b.now())
	if current != b.month {
		b.month = current
		b.spent = 0
	}
}

func (b *monthlyCostBudget) Reserve(_ context.Context, amount float64) error {
	if amount < 0 {
		amount = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	if b.spent+amount > b.cap {
		return apierr.BudgetExceeded(fmt.Errorf("monthly budget exhausted: spent %.2f of %.2f, requested %.2f", b.spent, b.cap, amount))
	}
	b.spent += amount
	return nil
}

func (b *monthlyCostBudget) Commit(_ context.Context, reserved float64, actual float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	b.spent += actual - reserved
	if b.spent < 0 {
		b.spent = 0
	}
}

func (b *monthlyCostBudget) Release(_ context.Context, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	b.spent -= amount
	if b.spent < 0 {
		b.spent = 0
	}
}

func (b *monthlyCostBudget) Remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	r := b.cap - b.spent
	if r < 0 {
		return 0
	}
	return r
}
