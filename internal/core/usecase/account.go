package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
)

// AccountUseCase is the admin surface for tenant accounts.
type AccountUseCase struct {
	accounts ports.AccountRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewAccountUseCase(accounts ports.AccountRepository, logger *slog.Logger) *AccountUseCase {
	return &AccountUseCase{
		accounts: accounts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *AccountUseCase) Create(ctx context.Context, name, code string, monthlyLimit int) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(code)
	if err := validateAccountFields(name, code, monthlyLimit); err != nil {
		return nil, err
	}

	if _, err := uc.accounts.GetByCode(ctx, code); err == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create account", fmt.Errorf("code %q is already in use", code))
	} else if !domain.IsKind(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	now := uc.now()
	account := &domain.Account{
		ID:               uuid.NewString(),
		Name:             name,
		Code:             code,
		MonthlyScanLimit: monthlyLimit,
		CurrentScanCount: 0,
		ScanCountResetAt: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	uc.logger.Info("account_created", "account_id", account.ID, "code", account.Code, "monthly_limit", monthlyLimit)
	return account, nil
}

func (uc *AccountUseCase) Update(ctx context.Context, id, name, code string, monthlyLimit int) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(code)
	if err := validateAccountFields(name, code, monthlyLimit); err != nil {
		return nil, err
	}

	account, err := uc.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if other, err := uc.accounts.GetByCode(ctx, code); err == nil && other.ID != id {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update account", fmt.Errorf("code %q is already in use", code))
	} else if err != nil && !domain.IsKind(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	account.Name = name
	account.Code = code
	account.MonthlyScanLimit = monthlyLimit
	account.UpdatedAt = uc.now()
	if err := uc.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	return account, nil
}

func (uc *AccountUseCase) Delete(ctx context.Context, id string) error {
	account, err := uc.accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	count, err := uc.accounts.CountInvoices(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("count account invoices: %w", err)
	}
	if count > 0 {
		return domain.WrapError(domain.ErrInvalidInput, "delete account", fmt.Errorf("account owns %d invoices", count))
	}

	if err := uc.accounts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	uc.logger.Info("account_deleted", "account_id", id, "code", account.Code)
	return nil
}

// List returns all accounts with stale counters presented as zero. The
// persisted reset happens lazily on the quota paths; the admin list only
// corrects the view.
func (uc *AccountUseCase) List(ctx context.Context) ([]domain.Account, error) {
	accounts, err := uc.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	for i := range accounts {
		if accounts[i].UsageStale(now) {
			accounts[i].CurrentScanCount = 0
		}
	}
	return accounts, nil
}

func validateAccountFields(name, code string, monthlyLimit int) error {
	if len(name) < 3 {
		return domain.WrapError(domain.ErrInvalidInput, "account", errors.New("name must be at least 3 characters"))
	}
	if len(code) < 2 {
		return domain.WrapError(domain.ErrInvalidInput, "account", errors.New("code must be at least 2 characters"))
	}
	if monthlyLimit < 0 {
		return domain.WrapError(domain.ErrInvalidInput, "account", errors.New("monthly scan limit cannot be negative"))
	}
	return nil
}
