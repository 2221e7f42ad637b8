package services

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
)

func TestSyncAllRunsInDependencyOrder(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	writer := &fakeFlusher{}

	api.searchFn = func(resource string, filter map[string]interface{}, page, pageSize int) ([]record.Record, error) {
		if resource == "categorias" {
			return []record.Record{{"id": "cat-r1", "tipo": "RECEITA"}}, nil
		}
		return nil, nil
	}
	api.listFn = func(resource string, params url.Values) ([]record.Record, error) {
		return nil, nil
	}

	// Category rows land in the store as the event fan-out reads them.
	catWriter := &storeBackedFlusher{store: store, inner: writer}

	p := newTestPipeline(api, store, &fakeFlusher{}, newFakeWatermarks())
	p.writer = catWriter

	results, err := p.SyncAll()

	require.NoError(t, err)
	assert.Len(t, results, 6)
	for _, step := range []string{"categories", "receivables", "payables", "sales", "installments", "accounts"} {
		assert.Contains(t, results, step)
	}

	// The flush order follows the dependency chain.
	var order []string
	seen := map[string]bool{}
	for _, f := range writer.flushes {
		if !seen[f.table] {
			seen[f.table] = true
			order = append(order, f.table)
		}
	}
	assert.Equal(t, []string{
		models.TableCategories,
		models.TableReceivables,
		models.TablePayables,
		models.TableSales,
		models.TableInstallments,
		models.TableFinancialAccounts,
	}, order)
}

func TestSyncAllAbortsOnFirstFailure(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	// No category table and no remote categories: the receivable fan-out
	// cannot start.
	p := newTestPipeline(api, store, &fakeFlusher{}, newFakeWatermarks())

	results, err := p.SyncAll()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "receivables sync failed")
	assert.Contains(t, results, "categories")
	assert.NotContains(t, results, "payables")
}

// storeBackedFlusher mirrors flushed rows into the fake store so later sync
// steps can read what earlier ones wrote, like the real warehouse does.
type storeBackedFlusher struct {
	store *fakeStore
	inner *fakeFlusher
}

func (f *storeBackedFlusher) Flush(table string, rows []record.Record, mergeKey string) error {
	f.store.tables[table] = append(f.store.tables[table], rows...)
	return f.inner.Flush(table, rows, mergeKey)
}
