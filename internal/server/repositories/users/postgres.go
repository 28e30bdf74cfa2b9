package users

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/dbx"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, email, COALESCE(password_hash, ''), name, role,
		 COALESCE(social_provider, ''), COALESCE(social_id, ''),
		 COALESCE(profile_image, ''), COALESCE(refresh_fingerprint, ''),
		 created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role,
		&u.SocialProvider, &u.SocialID, &u.ProfileImage, &u.RefreshFingerprint,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// isMalformedID reports a value Postgres could not cast to the uuid id
// column. No row can have such an id.
func isMalformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, name, role, social_provider, social_id, profile_image)
		 VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		 RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.Name, string(user.Role),
		user.SocialProvider, user.SocialID, user.ProfileImage))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", common.ErrorAlreadyExists, err)
		}
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetBySocial(ctx context.Context, provider, socialID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE social_provider = $1 AND social_id = $2`
	return scanUser(r.db.QueryRowContext(ctx, query, provider, socialID))
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, name, profileImage string) (*models.User, error) {
	query :=
		`UPDATE users SET name = $2, profile_image = NULLIF($3, ''), updated_at = now()
		 WHERE id = $1
		 RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, id, name, profileImage))
}

func (r *PostgresRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	query := `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`
	return execOne(ctx, r.db, query, id, string(role))
}

func (r *PostgresRepository) SetRefreshFingerprint(ctx context.Context, id, fingerprint string) error {
	query := `UPDATE users SET refresh_fingerprint = NULLIF($2, '') WHERE id = $1`
	return execOne(ctx, r.db, query, id, fingerprint)
}

// SwapRefreshFingerprint locks the row so two concurrent refreshes of the
// same token cannot both pass the comparison.
func (r *PostgresRepository) SwapRefreshFingerprint(ctx context.Context, id, expected, next string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(refresh_fingerprint, '') FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}

		if current == "" || subtle.ConstantTimeCompare([]byte(current), []byte(expected)) != 1 {
			return common.ErrFingerprintMismatch
		}

		return execOne(ctx, tx, `UPDATE users SET refresh_fingerprint = NULLIF($2, '') WHERE id = $1`, id, next)
	})
}

func execOne(ctx context.Context, db dbx.DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if isMalformedID(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
