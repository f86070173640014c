package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

const budgetColumns = `id, user_id, amount, last_alert_sent, updated_at`

func scanBudget(row rowScanner) (*domain.Budget, error) {
	var (
		b    domain.Budget
		last sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.Amount, &last, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		b.LastAlertSent = &t
	}
	return &b, nil
}

func (s *Store) GetBudget(ctx context.Context, userID string) (*domain.Budget, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetBudget")
	defer span.End()

	b, err := scanBudget(s.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "budget", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// UpsertBudget sets the user's monthly amount. last_alert_sent is left
// untouched so changing the amount does not re-arm this month's alert.
func (s *Store) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Budget, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertBudget")
	defer span.End()

	b, err := scanBudget(s.db.QueryRowContext(ctx,
		`INSERT INTO budgets (id, user_id, amount, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		 RETURNING `+budgetColumns,
		uuid.NewString(), userID, amount, s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("upsert budget: %w", err)
	}
	return b, nil
}

// ListBudgetAlertTargets returns every budget with its owner and the owner's
// default account, if any.
func (s *Store) ListBudgetAlertTargets(ctx context.Context) ([]domain.BudgetAlertTarget, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListBudgetAlertTargets")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.user_id, b.amount, b.last_alert_sent, b.updated_at,
		        u.id, u.external_id, u.name, u.email, u.created_at,
		        a.id, a.name, a.type, a.balance, a.created_at
		 FROM budgets b
		 JOIN users u ON u.id = b.user_id
		 LEFT JOIN accounts a ON a.user_id = b.user_id AND a.is_default
		 ORDER BY b.id`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	targets := make([]domain.BudgetAlertTarget, 0)
	for rows.Next() {
		var (
			t        domain.BudgetAlertTarget
			last     sql.NullTime
			accID    sql.NullString
			accName  sql.NullString
			accType  sql.NullString
			balance  decimal.NullDecimal
			accSince sql.NullTime
		)
		err := rows.Scan(
			&t.Budget.ID, &t.Budget.UserID, &t.Budget.Amount, &last, &t.Budget.UpdatedAt,
			&t.User.ID, &t.User.ExternalID, &t.User.Name, &t.User.Email, &t.User.CreatedAt,
			&accID, &accName, &accType, &balance, &accSince,
		)
		if err != nil {
			return nil, fmt.Errorf("scan budget target: %w", err)
		}
		if last.Valid {
			lt := last.Time
			t.Budget.LastAlertSent = &lt
		}
		if accID.Valid {
			t.DefaultAccount = &domain.Account{
				ID:        accID.String,
				UserID:    t.User.ID,
				Name:      accName.String,
				Type:      domain.AccountType(accType.String),
				Balance:   balance.Decimal,
				IsDefault: true,
				CreatedAt: accSince.Time,
			}
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (s *Store) MarkBudgetAlertSent(ctx context.Context, budgetID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Postgres.MarkBudgetAlertSent")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET last_alert_sent = $1 WHERE id = $2`, at.UTC(), budgetID)
	if err != nil {
		return fmt.Errorf("mark budget alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark budget alert: %w", err)
	}
	if n == 0 {
		return &domain.ErrNotFound{Resource: "budget", ID: budgetID}
	}
	return nil
}
