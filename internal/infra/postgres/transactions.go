package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

const transactionColumns = `id, type, amount, description, date, category, account_id, user_id,
	is_recurring, recurring_interval, next_recurring_date, created_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t        domain.Transaction
		interval sql.NullString
		next     sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Type, &t.Amount, &t.Description, &t.Date, &t.Category, &t.AccountID, &t.UserID,
		&t.IsRecurring, &interval, &next, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if interval.Valid {
		ri := domain.RecurringInterval(interval.String)
		t.RecurringInterval = &ri
	}
	if next.Valid {
		n := next.Time
		t.NextRecurringDate = &n
	}
	return &t, nil
}

// CreateTransaction inserts the row and shifts the account balance by delta
// in one SQL transaction. The balance is updated in place, so concurrent
// writers to the same account never lose an update.
func (s *Store) CreateTransaction(ctx context.Context, t *domain.Transaction, delta decimal.Decimal) (*domain.Transaction, decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateTransaction")
	defer span.End()

	row := *t
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now().UTC()
	}

	var (
		interval any
		next     any
	)
	if row.RecurringInterval != nil {
		interval = string(*row.RecurringInterval)
	}
	if row.NextRecurringDate != nil {
		next = *row.NextRecurringDate
	}

	var balance decimal.Decimal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (`+transactionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			row.ID, row.Type, row.Amount, row.Description, row.Date, row.Category, row.AccountID, row.UserID,
			row.IsRecurring, interval, next, row.CreatedAt); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		err := tx.QueryRowContext(ctx,
			`UPDATE accounts SET balance = balance + $1 WHERE id = $2 AND user_id = $3 RETURNING balance`,
			delta, row.AccountID, row.UserID).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "account", ID: row.AccountID}
		}
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("postgres: transaction rolled back",
			zap.String("account_id", row.AccountID),
			zap.Error(err),
		)
		return nil, decimal.Zero, err
	}
	return &row, balance, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID, accountID string, limit int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListTransactions")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = $1 AND account_id = $2
		 ORDER BY date DESC, created_at DESC
		 LIMIT $3`,
		userID, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (s *Store) SumExpensesSince(ctx context.Context, userID, accountID string, since time.Time) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Postgres.SumExpensesSince")
	defer span.End()

	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		 WHERE user_id = $1 AND account_id = $2 AND type = 'EXPENSE' AND date >= $3`,
		userID, accountID, since).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return total, nil
}
