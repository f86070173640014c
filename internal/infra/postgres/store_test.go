package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func sampleTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-1",
		Type:      domain.TransactionTypeExpense,
		Amount:    decimal.RequireFromString("25.50"),
		Date:      fixedNow,
		Category:  "groceries",
		AccountID: "acc-1",
		UserID:    "user-1",
	}
}

func TestCreateTransaction_CommitsInsertAndBalance(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE accounts SET balance = balance + $1")).
		WithArgs(sqlmock.AnyArg(), "acc-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("74.50"))
	mock.ExpectCommit()

	tx, balance, err := s.CreateTransaction(context.Background(), sampleTransaction(), decimal.RequireFromString("-25.50"))
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
	assert.True(t, balance.Equal(decimal.RequireFromString("74.50")))
	assert.Equal(t, fixedNow, tx.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransaction_RollsBackWhenBalanceUpdateFails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE accounts SET balance")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, _, err := s.CreateTransaction(context.Background(), sampleTransaction(), decimal.RequireFromString("-25.50"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update balance")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransaction_RollsBackWhenInsertFails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, _, err := s.CreateTransaction(context.Background(), sampleTransaction(), decimal.RequireFromString("-25.50"))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransaction_MissingAccountRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE accounts SET balance")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectRollback()

	_, _, err := s.CreateTransaction(context.Background(), sampleTransaction(), decimal.RequireFromString("-25.50"))

	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "account", nf.Resource)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumExpensesSince(t *testing.T) {
	s, mock := newMockStore(t)
	since := domain.StartOfMonth(fixedNow)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0) FROM transactions")).
		WithArgs("user-1", "acc-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("850.00"))

	total, err := s.SumExpensesSince(context.Background(), "user-1", "acc-1", since)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(850)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccount_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1 AND user_id = $2")).
		WithArgs("acc-9", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetAccount(context.Background(), "user-1", "acc-9")

	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Account not found", nf.Error())
}

func TestCreateAccount_FirstAccountBecomesDefault(t *testing.T) {
	s, mock := newMockStore(t)

	cols := []string{"id", "user_id", "name", "type", "balance", "is_default", "created_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM accounts")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET is_default = false")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs(sqlmock.AnyArg(), "user-1", "Main", "CURRENT", sqlmock.AnyArg(), true, fixedNow).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("acc-1", "user-1", "Main", "CURRENT", "0", true, fixedNow))
	mock.ExpectCommit()

	acc, err := s.CreateAccount(context.Background(), &domain.Account{
		UserID: "user-1",
		Name:   "Main",
		Type:   domain.AccountTypeCurrent,
	})
	require.NoError(t, err)
	assert.True(t, acc.IsDefault)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDefaultAccount_UnknownAccountRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET is_default = false")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE accounts SET is_default = true")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.SetDefaultAccount(context.Background(), "user-1", "acc-x")

	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBudgetAlertTargets_WithAndWithoutDefaultAccount(t *testing.T) {
	s, mock := newMockStore(t)

	lastAlert := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"b.id", "b.user_id", "b.amount", "b.last_alert_sent", "b.updated_at",
		"u.id", "u.external_id", "u.name", "u.email", "u.created_at",
		"a.id", "a.name", "a.type", "a.balance", "a.created_at",
	}).
		AddRow("b-1", "user-1", "1000", lastAlert, fixedNow,
			"user-1", "ext-1", "Ada", "ada@example.com", fixedNow,
			"acc-1", "Main", "CURRENT", "120.00", fixedNow).
		AddRow("b-2", "user-2", "500", nil, fixedNow,
			"user-2", "ext-2", "Bob", "bob@example.com", fixedNow,
			nil, nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM budgets b")).WillReturnRows(rows)

	targets, err := s.ListBudgetAlertTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, "acc-1", targets[0].DefaultAccount.ID)
	require.NotNil(t, targets[0].Budget.LastAlertSent)
	assert.Equal(t, lastAlert, *targets[0].Budget.LastAlertSent)

	assert.Nil(t, targets[1].DefaultAccount)
	assert.Nil(t, targets[1].Budget.LastAlertSent)
	assert.True(t, targets[1].Budget.Amount.Equal(decimal.NewFromInt(500)))
}

func TestMarkBudgetAlertSent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE budgets SET last_alert_sent = $1 WHERE id = $2")).
		WithArgs(fixedNow, "b-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE budgets SET last_alert_sent = $1 WHERE id = $2")).
		WithArgs(fixedNow, "b-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.MarkBudgetAlertSent(context.Background(), "b-1", fixedNow))

	var nf *domain.ErrNotFound
	assert.ErrorAs(t, s.MarkBudgetAlertSent(context.Background(), "b-missing", fixedNow), &nf)
	assert.NoError(t, mock.ExpectationsWereMet())
}
