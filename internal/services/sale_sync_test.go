package services

import (
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
)

func TestSyncSalesUsesLegacyZeroBasedPaging(t *testing.T) {
	legacy := &fakeAPI{}
	v2 := &fakeAPI{}
	writer := &fakeFlusher{}

	var pagesSeen []string
	legacy.listFn = func(resource string, params url.Values) ([]record.Record, error) {
		assert.Equal(t, saleResource, resource)
		pagesSeen = append(pagesSeen, params.Get("page"))
		if params.Get("page") == "0" {
			return fullSalePage(100), nil
		}
		return []record.Record{{"id": "s-last", "total": 10.0}}, nil
	}

	p := NewPipeline("t1", v2, legacy, newFakeStore(), writer, newFakeWatermarks(), testSyncConfig(), zerolog.Nop())
	result, err := p.SyncSales()

	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, pagesSeen)
	assert.Equal(t, 101, result.TotalItems)

	// Sales only ever go through the legacy generation client.
	assert.Empty(t, v2.calls)

	flushes := writer.forTable(models.TableSales)
	require.Len(t, flushes, 1)
	assert.Equal(t, "id", flushes[0].mergeKey)
}

func TestSyncSalesRewritesAllOnSecondRun(t *testing.T) {
	legacy := &fakeAPI{}
	writer := &fakeFlusher{}

	legacy.listFn = func(resource string, params url.Values) ([]record.Record, error) {
		if params.Get("page") != "0" {
			return nil, nil
		}
		return []record.Record{{"id": "s1", "total": 10.0}}, nil
	}

	// Sales carry no update timestamp: even with an existing watermark a
	// later run re-syncs everything instead of silently dropping it.
	marks := newFakeWatermarks()
	w := time.Date(2024, 3, 20, 0, 0, 0, 0, record.CivilTZ)
	marks.last[models.TableSales] = &w

	p := NewPipeline("t1", &fakeAPI{}, legacy, newFakeStore(), writer, marks, testSyncConfig(), zerolog.Nop())
	result, err := p.SyncSales()

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalItems)
}

func fullSalePage(n int) []record.Record {
	page := make([]record.Record, n)
	for i := range page {
		page[i] = record.Record{"id": "s", "total": 1.0}
	}
	return page
}
