package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
)

// QuotaUseCase is the monthly usage ledger. Counters roll over lazily: the
// first touch of an account in a new calendar month persists counter=0 and
// the new reset timestamp before the limit is evaluated.
type QuotaUseCase struct {
	accounts ports.AccountRepository
	events   ports.EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewQuotaUseCase(accounts ports.AccountRepository, events ports.EventPublisher, logger *slog.Logger) *QuotaUseCase {
	return &QuotaUseCase{
		accounts: accounts,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *QuotaUseCase) CheckAndReserve(ctx context.Context, accountCode string, scanCount int) (domain.QuotaStats, error) {
	if scanCount <= 0 {
		return domain.QuotaStats{}, domain.WrapError(domain.ErrInvalidInput, "quota check", fmt.Errorf("scan count must be positive, got %d", scanCount))
	}

	account, err := uc.loadWithRollover(ctx, accountCode)
	if err != nil {
		return domain.QuotaStats{}, err
	}

	// The boundary is inclusive: usage+requested == limit is still allowed.
	if account.CurrentScanCount+scanCount > account.MonthlyScanLimit {
		return domain.QuotaStats{}, fmt.Errorf(
			"%w: monthly scan limit (%d) reached, current usage: %d",
			domain.ErrQuotaExceeded, account.MonthlyScanLimit, account.CurrentScanCount,
		)
	}
	return domain.NewQuotaStats(account), nil
}

func (uc *QuotaUseCase) Commit(ctx context.Context, accountCode string, scanCount int) error {
	if scanCount <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "quota commit", fmt.Errorf("scan count must be positive, got %d", scanCount))
	}

	if _, err := uc.loadWithRollover(ctx, accountCode); err != nil {
		return err
	}

	// Single conditional increment; concurrent commits from the same account
	// cannot drive the counter past the limit.
	account, err := uc.accounts.IncrementUsageWithinLimit(ctx, accountCode, scanCount)
	if err != nil {
		return err
	}

	if pubErr := uc.events.PublishUsageCommitted(ctx, accountCode, scanCount); pubErr != nil {
		uc.logger.Warn("usage_event_publish_failed", "account_code", accountCode, "error", pubErr)
	}

	uc.logger.Info("usage_committed",
		"account_code", accountCode,
		"scan_count", scanCount,
		"current_usage", account.CurrentScanCount,
		"monthly_limit", account.MonthlyScanLimit,
	)
	return nil
}

func (uc *QuotaUseCase) Stats(ctx context.Context, accountCode string) (domain.QuotaStats, error) {
	account, err := uc.loadWithRollover(ctx, accountCode)
	if err != nil {
		return domain.QuotaStats{}, err
	}
	return domain.NewQuotaStats(account), nil
}

func (uc *QuotaUseCase) loadWithRollover(ctx context.Context, accountCode string) (*domain.Account, error) {
	if accountCode == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "quota", fmt.Errorf("account code is required"))
	}

	account, err := uc.accounts.GetByCode(ctx, accountCode)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	if account.UsageStale(now) {
		if err := uc.accounts.ResetUsage(ctx, accountCode, now); err != nil {
			return nil, fmt.Errorf("reset monthly usage: %w", err)
		}
		account.CurrentScanCount = 0
		account.ScanCountResetAt = now
		uc.logger.Info("usage_counter_reset", "account_code", accountCode)
	}
	return account, nil
}
