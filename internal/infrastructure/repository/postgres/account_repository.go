package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = "id, name, code, monthly_scan_limit, current_scan_count, scan_count_reset_at, created_at, updated_at"

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO accounts (id, name, code, monthly_scan_limit, current_scan_count, scan_count_reset_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		account.ID, account.Name, account.Code, account.MonthlyScanLimit,
		account.CurrentScanCount, account.ScanCountResetAt, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrInvalidInput, "create account", fmt.Errorf("code %q already exists", account.Code))
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByCode(ctx context.Context, code string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE code = $1
`, code)

	account, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAccountNotFound, "get account by code", fmt.Errorf("code=%s", code))
		}
		return nil, fmt.Errorf("get account by code: %w", err)
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE id = $1
`, id)

	account, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAccountNotFound, "get account by id", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
ORDER BY name ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE accounts
SET name = $2, code = $3, monthly_scan_limit = $4, updated_at = $5
WHERE id = $1
`, account.ID, account.Name, account.Code, account.MonthlyScanLimit, account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrInvalidInput, "update account", fmt.Errorf("code %q already exists", account.Code))
		}
		return fmt.Errorf("update account: %w", err)
	}
	return requireRowAffected(result, domain.ErrAccountNotFound, "update account", account.ID)
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireRowAffected(result, domain.ErrAccountNotFound, "delete account", id)
}

func (r *AccountRepository) ResetUsage(ctx context.Context, code string, resetAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE accounts
SET current_scan_count = 0, scan_count_reset_at = $2, updated_at = $3
WHERE code = $1
`, code, resetAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset account usage: %w", err)
	}
	return requireRowAffected(result, domain.ErrAccountNotFound, "reset account usage", code)
}

// IncrementUsageWithinLimit bumps the counter in one conditional statement so
// concurrent scans cannot push usage past the monthly limit.
func (r *AccountRepository) IncrementUsageWithinLimit(ctx context.Context, code string, n int) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE accounts
SET current_scan_count = current_scan_count + $2, updated_at = $3
WHERE code = $1 AND current_scan_count + $2 <= monthly_scan_limit
RETURNING `+accountColumns+`
`, code, n, time.Now().UTC())

	account, err := scanAccountRow(row)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("increment account usage: %w", err)
	}

	// Either the account is gone or the increment would overshoot.
	if _, getErr := r.GetByCode(ctx, code); getErr != nil {
		return nil, getErr
	}
	return nil, domain.WrapError(domain.ErrQuotaExceeded, "increment account usage", fmt.Errorf("code=%s n=%d", code, n))
}

func (r *AccountRepository) CountInvoices(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count account invoices: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID, &account.Name, &account.Code, &account.MonthlyScanLimit,
		&account.CurrentScanCount, &account.ScanCountResetAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func requireRowAffected(result sql.Result, kind error, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(kind, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
