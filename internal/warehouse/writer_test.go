package warehouse

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conta-sync-service/internal/record"
)

type memStore struct {
	tables    map[string][]record.Record
	appendErr error
	deletes   int
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string][]record.Record)}
}

func (s *memStore) TableExists(table string) (bool, error) {
	_, ok := s.tables[table]
	return ok, nil
}

func (s *memStore) Append(table string, rows []record.Record) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.tables[table] = append(s.tables[table], rows...)
	return nil
}

func (s *memStore) DeleteWhereKeyIn(table, keyField string, values []interface{}) error {
	s.deletes++
	drop := make(map[interface{}]bool, len(values))
	for _, v := range values {
		drop[v] = true
	}
	var kept []record.Record
	for _, row := range s.tables[table] {
		if !drop[row[keyField]] {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept
	return nil
}

type recordedSync struct {
	table string
	count int
}

type memWatermarks struct {
	synced []recordedSync
}

func (m *memWatermarks) RecordSync(tenantID, table string, count int) error {
	m.synced = append(m.synced, recordedSync{table: table, count: count})
	return nil
}

func TestFlushFirstWriteSkipsDelete(t *testing.T) {
	store := newMemStore()
	marks := &memWatermarks{}
	w := NewWriter(store, marks, "t1", zerolog.Nop())

	rows := []record.Record{{"id": "a"}, {"id": "b"}}
	require.NoError(t, w.Flush("categorias", rows, "id"))

	assert.Equal(t, 0, store.deletes)
	assert.Len(t, store.tables["categorias"], 2)
	require.Len(t, marks.synced, 1)
	assert.Equal(t, recordedSync{table: "categorias", count: 2}, marks.synced[0])
}

func TestFlushReplacesByMergeKey(t *testing.T) {
	store := newMemStore()
	store.tables["categorias"] = []record.Record{
		{"id": "a", "nome": "old"},
		{"id": "c", "nome": "kept"},
	}
	w := NewWriter(store, &memWatermarks{}, "t1", zerolog.Nop())

	require.NoError(t, w.Flush("categorias", []record.Record{{"id": "a", "nome": "new"}}, "id"))

	rows := store.tables["categorias"]
	require.Len(t, rows, 2)
	byID := map[interface{}]record.Record{}
	for _, r := range rows {
		byID[r["id"]] = r
	}
	assert.Equal(t, "new", byID["a"]["nome"])
	assert.Equal(t, "kept", byID["c"]["nome"])
}

func TestFlushIsIdempotent(t *testing.T) {
	store := newMemStore()
	w := NewWriter(store, &memWatermarks{}, "t1", zerolog.Nop())

	rows := []record.Record{{"id": "a"}, {"id": "b"}}
	require.NoError(t, w.Flush("vendas", rows, "id"))
	require.NoError(t, w.Flush("vendas", rows, "id"))

	assert.Len(t, store.tables["vendas"], 2)
}

func TestFlushEmptyBatchStillRecordsWatermark(t *testing.T) {
	store := newMemStore()
	marks := &memWatermarks{}
	w := NewWriter(store, marks, "t1", zerolog.Nop())

	require.NoError(t, w.Flush("categorias", nil, "id"))

	assert.Empty(t, store.tables["categorias"])
	require.Len(t, marks.synced, 1)
	assert.Equal(t, recordedSync{table: "categorias", count: 0}, marks.synced[0])
}

func TestFlushFailedAppendSkipsWatermark(t *testing.T) {
	store := newMemStore()
	store.appendErr = errors.New("disk full")
	marks := &memWatermarks{}
	w := NewWriter(store, marks, "t1", zerolog.Nop())

	err := w.Flush("vendas", []record.Record{{"id": "a"}}, "id")

	require.Error(t, err)
	assert.Empty(t, marks.synced)
}

func TestMergeKeyValuesDedupesAndSkipsNil(t *testing.T) {
	rows := []record.Record{
		{"id": "a"},
		{"id": "a"},
		{"id": nil},
		{"other": "x"},
		{"id": "b"},
	}
	assert.Equal(t, []interface{}{"a", "b"}, mergeKeyValues(rows, "id"))
}
