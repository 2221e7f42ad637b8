package repositories

import (
	"database/sql"
	"errors"

	"conta-sync-service/internal/models"
)

// ErrTenantNotFound is returned when a tenant id resolves to nothing.
var ErrTenantNotFound = errors.New("tenant not found")

type TenantRepository interface {
	GetTenant(id string) (*models.Tenant, error)
	ResolveNamespace(id string) (string, error)
	ListTenants() ([]*models.Tenant, error)
	UpsertTenant(t *models.Tenant) error
}

type tenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) GetTenant(id string) (*models.Tenant, error) {
	t := &models.Tenant{}
	query := `
		SELECT id, name, namespace, created_at, updated_at
		FROM tenants
		WHERE id = ?
	`
	err := r.db.QueryRow(query, id).Scan(
		&t.ID,
		&t.Name,
		&t.Namespace,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *tenantRepository) ResolveNamespace(id string) (string, error) {
	t, err := r.GetTenant(id)
	if err != nil {
		return "", err
	}
	return t.Namespace, nil
}

func (r *tenantRepository) ListTenants() ([]*models.Tenant, error) {
	query := `
		SELECT id, name, namespace, created_at, updated_at
		FROM tenants
		ORDER BY id
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t := &models.Tenant{}
		err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Namespace,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *tenantRepository) UpsertTenant(t *models.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, namespace)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			namespace = VALUES(namespace)
	`
	_, err := r.db.Exec(query, t.ID, t.Name, t.Namespace)
	return err
}
