package usecase

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

func newQuotaTestUseCase(accounts *accountRepoFake, now time.Time) (*QuotaUseCase, *eventsFake) {
	events := &eventsFake{}
	uc := NewQuotaUseCase(accounts, events, slog.New(slog.DiscardHandler))
	uc.now = func() time.Time { return now }
	return uc, events
}

func TestQuotaBoundaryScenario(t *testing.T) {
	now := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	accounts := newAccountRepoFake(&domain.Account{
		ID:               "acc-1",
		Name:             "Acme",
		Code:             "AC",
		MonthlyScanLimit: 10,
		CurrentScanCount: 9,
		ScanCountResetAt: now.AddDate(0, 0, -5),
	})
	uc, _ := newQuotaTestUseCase(accounts, now)
	ctx := context.Background()

	// 2-page scan overshoots: rejected with limit and usage in the message.
	_, err := uc.CheckAndReserve(ctx, "AC", 2)
	if !domain.IsKind(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "10") || !strings.Contains(err.Error(), "9") {
		t.Fatalf("rejection must report limit and usage, got %q", err.Error())
	}

	// 1-page scan lands exactly on the limit: allowed.
	if _, err := uc.CheckAndReserve(ctx, "AC", 1); err != nil {
		t.Fatalf("usage+requested == limit must be allowed, got %v", err)
	}
	if err := uc.Commit(ctx, "AC", 1); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	stats, err := uc.Stats(ctx, "AC")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.CurrentUsage != 10 || stats.RemainingScans != 0 {
		t.Fatalf("stats after commit = %+v", stats)
	}

	// The next scan is rejected.
	if _, err := uc.CheckAndReserve(ctx, "AC", 1); !domain.IsKind(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected rejection after limit reached, got %v", err)
	}
}

func TestQuotaMonthRolloverResetsBeforeCheck(t *testing.T) {
	now := time.Date(2025, time.July, 1, 8, 0, 0, 0, time.UTC)
	accounts := newAccountRepoFake(&domain.Account{
		ID:               "acc-1",
		Code:             "AC",
		MonthlyScanLimit: 5,
		CurrentScanCount: 5,
		ScanCountResetAt: time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC),
	})
	uc, _ := newQuotaTestUseCase(accounts, now)

	stats, err := uc.CheckAndReserve(context.Background(), "AC", 5)
	if err != nil {
		t.Fatalf("check after rollover should pass, got %v", err)
	}
	if stats.CurrentUsage != 0 {
		t.Fatalf("usage after rollover = %d, want 0", stats.CurrentUsage)
	}
	if accounts.resetCalls != 1 {
		t.Fatalf("rollover must be persisted, reset calls = %d", accounts.resetCalls)
	}

	stored, _ := accounts.GetByCode(context.Background(), "AC")
	if !stored.ScanCountResetAt.Equal(now) {
		t.Fatalf("reset timestamp = %v, want %v", stored.ScanCountResetAt, now)
	}
}

func TestQuotaUnknownCode(t *testing.T) {
	uc, _ := newQuotaTestUseCase(newAccountRepoFake(), time.Now())

	if _, err := uc.CheckAndReserve(context.Background(), "NOPE", 1); !domain.IsKind(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := uc.CheckAndReserve(context.Background(), "", 1); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty code, got %v", err)
	}
}

func TestQuotaCommitPublishesUsageEvent(t *testing.T) {
	now := time.Now().UTC()
	accounts := newAccountRepoFake(&domain.Account{
		ID:               "acc-1",
		Code:             "AC",
		MonthlyScanLimit: 10,
		ScanCountResetAt: now,
	})
	uc, events := newQuotaTestUseCase(accounts, now)

	if err := uc.Commit(context.Background(), "AC", 3); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(events.usageEvents) != 1 || events.usageEvents[0] != "AC:3" {
		t.Fatalf("usage events = %v", events.usageEvents)
	}
}

func TestQuotaCommitIsBoundedByLimit(t *testing.T) {
	now := time.Now().UTC()
	accounts := newAccountRepoFake(&domain.Account{
		ID:               "acc-1",
		Code:             "AC",
		MonthlyScanLimit: 4,
		CurrentScanCount: 3,
		ScanCountResetAt: now,
	})
	uc, _ := newQuotaTestUseCase(accounts, now)

	if err := uc.Commit(context.Background(), "AC", 2); !domain.IsKind(err, domain.ErrQuotaExceeded) {
		t.Fatalf("overshooting commit must fail, got %v", err)
	}
	stored, _ := accounts.GetByCode(context.Background(), "AC")
	if stored.CurrentScanCount != 3 {
		t.Fatalf("usage must be unchanged after rejected commit, got %d", stored.CurrentScanCount)
	}
}
