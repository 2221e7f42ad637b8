package repositories

import (
	"database/sql"
	"errors"

	"conta-sync-service/internal/models"
)

// ErrTokenNotFound is returned when a tenant has no credential stored for
// the requested API generation.
var ErrTokenNotFound = errors.New("token not found")

type TokenRepository interface {
	GetToken(tenantID, generation string) (*models.TokenCredential, error)
	UpsertToken(cred *models.TokenCredential) error
	ListTokens() ([]*models.TokenCredential, error)
}

type tokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) GetToken(tenantID, generation string) (*models.TokenCredential, error) {
	cred := &models.TokenCredential{}
	query := `
		SELECT id, tenant_id, generation, access_token, refresh_token,
		       expires_at, updated_at
		FROM tokens
		WHERE tenant_id = ? AND generation = ?
	`
	err := r.db.QueryRow(query, tenantID, generation).Scan(
		&cred.ID,
		&cred.TenantID,
		&cred.Generation,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.ExpiresAt,
		&cred.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (r *tokenRepository) UpsertToken(cred *models.TokenCredential) error {
	query := `
		INSERT INTO tokens (tenant_id, generation, access_token, refresh_token, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			access_token = VALUES(access_token),
			refresh_token = VALUES(refresh_token),
			expires_at = VALUES(expires_at)
	`
	_, err := r.db.Exec(query,
		cred.TenantID,
		cred.Generation,
		cred.AccessToken,
		cred.RefreshToken,
		cred.ExpiresAt,
	)
	return err
}

func (r *tokenRepository) ListTokens() ([]*models.TokenCredential, error) {
	query := `
		SELECT id, tenant_id, generation, access_token, refresh_token,
		       expires_at, updated_at
		FROM tokens
		ORDER BY tenant_id, generation
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.TokenCredential
	for rows.Next() {
		cred := &models.TokenCredential{}
		err := rows.Scan(
			&cred.ID,
			&cred.TenantID,
			&cred.Generation,
			&cred.AccessToken,
			&cred.RefreshToken,
			&cred.ExpiresAt,
			&cred.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}
