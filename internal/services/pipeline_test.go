package services

import (
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"conta-sync-service/internal/config"
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
)

// Shared in-memory fakes for the pipeline tests.

type apiCall struct {
	op       string
	resource string
	parentID string
	filter   map[string]interface{}
	page     int
}

type fakeAPI struct {
	calls    []apiCall
	searchFn func(resource string, filter map[string]interface{}, page, pageSize int) ([]record.Record, error)
	listFn   func(resource string, params url.Values) ([]record.Record, error)
	subFn    func(resource, parentID, sub string) ([]record.Record, error)
}

func (f *fakeAPI) Search(resource string, filter map[string]interface{}, page, pageSize int, sortAsc string) ([]record.Record, error) {
	f.calls = append(f.calls, apiCall{op: "search", resource: resource, filter: filter, page: page})
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(resource, filter, page, pageSize)
}

func (f *fakeAPI) List(resource string, params url.Values) ([]record.Record, error) {
	f.calls = append(f.calls, apiCall{op: "list", resource: resource})
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(resource, params)
}

func (f *fakeAPI) GetSub(resource, parentID, sub string) ([]record.Record, error) {
	f.calls = append(f.calls, apiCall{op: "sub", resource: resource, parentID: parentID})
	if f.subFn == nil {
		return nil, nil
	}
	return f.subFn(resource, parentID, sub)
}

func (f *fakeAPI) subCalls() []apiCall {
	var out []apiCall
	for _, c := range f.calls {
		if c.op == "sub" {
			out = append(out, c)
		}
	}
	return out
}

type fakeStore struct {
	tables map[string][]record.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string][]record.Record)}
}

func (s *fakeStore) TableExists(table string) (bool, error) {
	_, ok := s.tables[table]
	return ok, nil
}

func (s *fakeStore) QueryAll(table string) ([]record.Record, error) {
	return s.tables[table], nil
}

func (s *fakeStore) SumWhere(table, column string, where map[string]interface{}) (float64, error) {
	var sum float64
	for _, row := range s.tables[table] {
		match := true
		for k, v := range where {
			if row[k] != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if f := row.Float(column); f != nil {
			sum += *f
		}
	}
	return sum, nil
}

type flushCall struct {
	table    string
	rows     []record.Record
	mergeKey string
}

type fakeFlusher struct {
	flushes []flushCall
}

func (f *fakeFlusher) Flush(table string, rows []record.Record, mergeKey string) error {
	f.flushes = append(f.flushes, flushCall{table: table, rows: rows, mergeKey: mergeKey})
	return nil
}

func (f *fakeFlusher) forTable(table string) []flushCall {
	var out []flushCall
	for _, c := range f.flushes {
		if c.table == table {
			out = append(out, c)
		}
	}
	return out
}

type fakeWatermarks struct {
	last     map[string]*time.Time
	recorded []recordedMark
}

type recordedMark struct {
	table string
	count int
}

func newFakeWatermarks() *fakeWatermarks {
	return &fakeWatermarks{last: make(map[string]*time.Time)}
}

func (f *fakeWatermarks) LastSync(tenantID, table string) (*time.Time, error) {
	return f.last[table], nil
}

func (f *fakeWatermarks) RecordSync(tenantID, table string, count int) error {
	f.recorded = append(f.recorded, recordedMark{table: table, count: count})
	return nil
}

func (f *fakeWatermarks) ListWatermarks(tenantID string) ([]*models.SyncWatermark, error) {
	return nil, nil
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		PageSize:          100,
		BatchSize:         100,
		RequestDelay:      300 * time.Millisecond,
		SubResourcePerMin: 50,
		CategoryAttempts:  3,
	}
}

func newTestPipeline(api *fakeAPI, store *fakeStore, writer *fakeFlusher, marks *fakeWatermarks) *Pipeline {
	p := NewPipeline("t1", api, api, store, writer, marks, testSyncConfig(), zerolog.Nop())
	p.sleep = func(time.Duration) {}
	p.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, record.CivilTZ) }
	return p
}
