package models

import (
	"database/sql"
	"time"
)

// Tenant represents one customer of the private integration and maps it to
// its isolated warehouse namespace.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Namespace string    `db:"namespace" json:"namespace"`
	CreatedAt time.Time `db:"created_at" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// TokenCredential is one OAuth credential slot. Every tenant owns two
// independent slots, one per API generation.
type TokenCredential struct {
	ID           int64        `db:"id" json:"-"`
	TenantID     string       `db:"tenant_id" json:"tenant_id"`
	Generation   string       `db:"generation" json:"generation"`
	AccessToken  string       `db:"access_token" json:"-"`
	RefreshToken string       `db:"refresh_token" json:"-"`
	ExpiresAt    sql.NullTime `db:"expires_at" json:"expires_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// SyncWatermark is one entry of the append-only per-(tenant, table) sync log.
// The current watermark for a table is the max SyncedAt across its entries.
type SyncWatermark struct {
	ID          int64     `db:"id" json:"-"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	TableName   string    `db:"table_name" json:"table_name"`
	SyncedAt    time.Time `db:"synced_at" json:"synced_at"`
	RecordCount int       `db:"record_count" json:"record_count"`
}

// API generation constants
const (
	GenerationLegacy = "legacy"
	GenerationV2     = "v2"
)

// Category kind constants (remote vocabulary)
const (
	CategoryKindRevenue = "RECEITA"
	CategoryKindExpense = "DESPESA"
)

// Warehouse table names
const (
	TableCategories        = "categorias"
	TableReceivables       = "contas_a_receber"
	TablePayables          = "contas_a_pagar"
	TableSales             = "vendas"
	TableFinancialAccounts = "contas_financeiras"
	TableInstallments      = "parcelas"
	TableSettlements       = "baixas"
)
