package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

const userColumns = `id, external_id, name, email, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetUserByExternalID")
	defer span.End()

	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "user", ID: externalID}
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpsertUser inserts the user or refreshes name and email of the existing
// row with the same external id.
func (s *Store) UpsertUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertUser")
	defer span.End()

	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}

	u, err := scanUser(s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, external_id, name, email, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		 RETURNING `+userColumns,
		id, user.ExternalID, user.Name, user.Email, s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}
