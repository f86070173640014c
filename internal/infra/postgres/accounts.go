package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

const accountColumns = `id, user_id, name, type, balance, is_default, created_at`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.IsDefault, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAccounts")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// GetAccount looks the account up by id and owner, so a foreign account is
// indistinguishable from a missing one.
func (s *Store) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetAccount")
	defer span.End()

	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2`, accountID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateAccount")
	defer span.End()

	var created *domain.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM accounts WHERE user_id = $1`, account.UserID).Scan(&existing); err != nil {
			return fmt.Errorf("count accounts: %w", err)
		}

		isDefault := account.IsDefault || existing == 0
		if isDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE accounts SET is_default = false WHERE user_id = $1 AND is_default`, account.UserID); err != nil {
				return fmt.Errorf("clear default account: %w", err)
			}
		}

		a, err := scanAccount(tx.QueryRowContext(ctx,
			`INSERT INTO accounts (id, user_id, name, type, balance, is_default, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+accountColumns,
			uuid.NewString(), account.UserID, account.Name, account.Type, account.Balance, isDefault, s.now().UTC()))
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) SetDefaultAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.SetDefaultAccount")
	defer span.End()

	var updated *domain.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET is_default = false WHERE user_id = $1 AND is_default AND id <> $2`,
			userID, accountID); err != nil {
			return fmt.Errorf("clear default account: %w", err)
		}

		a, err := scanAccount(tx.QueryRowContext(ctx,
			`UPDATE accounts SET is_default = true WHERE id = $1 AND user_id = $2 RETURNING `+accountColumns,
			accountID, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "account", ID: accountID}
		}
		if err != nil {
			return fmt.Errorf("set default account: %w", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
