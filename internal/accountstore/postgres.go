package accountstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists accounts in a `accounts` table, giving the
// proxy a durable C2 backend in addition to MemoryRepository. The relational
// store itself is out of this module's scope (§1); this type only speaks
// the Repository contract against it.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects using databaseURL (typically DATABASE_URL).
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("accountstore: connect: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

const accountColumns = `id, user_id, provider, email, access_token, refresh_token,
	expires_at, is_active, project_id, tier, api_key, account_id, workspace_id, created_at`

func scanAccount(row pgx.Row) (*Account, error) {
	a := &Account{}
	var tier string
	if err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.Email, &a.AccessToken, &a.RefreshToken,
		&a.ExpiresAt, &a.IsActive, &a.ProjectID, &tier, &a.APIKey, &a.AccountID, &a.WorkspaceID, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Tier = Tier(tier)
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, userID, provider string) ([]*Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE is_active = true
		AND ($1 = '' OR user_id = $1)
		AND ($2 = '' OR provider = $2)
		ORDER BY created_at ASC`, userID, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, account *Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	account.IsActive = true
	_, err := r.pool.Exec(ctx, `INSERT INTO accounts
		(id, user_id, provider, email, access_token, refresh_token, expires_at, is_active,
		 project_id, tier, api_key, account_id, workspace_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		account.ID, account.UserID, account.Provider, account.Email, account.AccessToken,
		account.RefreshToken, account.ExpiresAt, account.IsActive, account.ProjectID,
		string(account.Tier), account.APIKey, account.AccountID, account.WorkspaceID, account.CreatedAt)
	return err
}

// RotateCredentials updates the access/refresh/expiry triple in a single
// statement so a crash between writes cannot leave mismatched tokens.
func (r *PostgresRepository) RotateCredentials(ctx context.Context, id string, rotated RotatedCredentials) (*Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	existing, err := scanAccount(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !rotated.ExpiresAt.After(existing.ExpiresAt) {
		rotated.ExpiresAt = existing.ExpiresAt.Add(time.Second)
	}
	apiKey := existing.APIKey
	if rotated.APIKey != "" {
		apiKey = rotated.APIKey
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET access_token=$1, refresh_token=$2, expires_at=$3, api_key=$4
		WHERE id=$5`, rotated.AccessToken, rotated.RefreshToken, rotated.ExpiresAt, apiKey, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	existing.AccessToken = rotated.AccessToken
	existing.RefreshToken = rotated.RefreshToken
	existing.ExpiresAt = rotated.ExpiresAt
	existing.APIKey = apiKey
	return existing, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
