package contaazul

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token      string
	refreshed  int32
	refreshErr error
}

func (s *staticTokens) Token() (string, error) { return s.token, nil }

func (s *staticTokens) Refresh() (string, error) {
	atomic.AddInt32(&s.refreshed, 1)
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	s.token = "refreshed-token"
	return s.token, nil
}

func newTestClient(t *testing.T, srv *httptest.Server, tokens TokenSource) *Client {
	t.Helper()
	c := NewClient(srv.URL, tokens, zerolog.Nop())
	c.sleep = func(time.Duration) {}
	return c
}

func TestSearchSendsFilterAndPaging(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		w.Write([]byte(`{"itens": [{"id": "1"}, {"id": "2"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticTokens{token: "abc"})
	items, err := c.Search("categorias", map[string]interface{}{"tipo": "RECEITA"}, 2, 100, "")

	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "/categorias/buscar", gotPath)
	assert.Contains(t, gotQuery, "pagina=2")
	assert.Contains(t, gotQuery, "tamanho_pagina=100")
	assert.Equal(t, "RECEITA", gotBody["tipo"])
}

func TestDoRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"id": "1"}]`))
	}))
	defer srv.Close()

	var slept []time.Duration
	c := NewClient(srv.URL, &staticTokens{token: "abc"}, zerolog.Nop())
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	items, err := c.List("contas-financeiras", nil)

	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 3, calls)
	// Backoff doubles between attempts.
	require.Len(t, slept, 2)
	assert.Equal(t, slept[0]*2, slept[1])
}

func TestDoExhausts429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticTokens{token: "abc"})
	_, err := c.List("contas-financeiras", nil)

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
}

func TestDoRefreshesTokenOn401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer refreshed-token", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id": "1"}]`))
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "stale"}
	c := newTestClient(t, srv, tokens)
	items, err := c.List("vendas", nil)

	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 1, tokens.refreshed)
}

func TestDoGivesUpAfterRepeated401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticTokens{token: "stale"})
	_, err := c.List("vendas", nil)

	assert.ErrorIs(t, err, ErrNoAccessToken)
}

func TestDoRetries400Once(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad"}`))
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticTokens{token: "abc"})
	_, err := c.List("vendas", nil)

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.EqualValues(t, 2, calls)
}

func TestDoFailsFastOnOtherClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticTokens{token: "abc"})
	_, err := c.List("vendas", nil)

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.EqualValues(t, 1, calls)
}

func TestDoWithoutTokenFailsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the server")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticTokens{token: ""})
	_, err := c.List("vendas", nil)

	assert.ErrorIs(t, err, ErrNoAccessToken)
}

func TestGetSubEscapesParentID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"parcelas": []}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticTokens{token: "abc"})
	_, err := c.GetSub("contas-a-receber", "id with space", "parcelas")

	require.NoError(t, err)
	assert.Equal(t, "/contas-a-receber/id%20with%20space/parcelas", gotPath)
}

func TestDecodeItemsShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"itens envelope", `{"itens": [{"id": "1"}, {"id": "2"}]}`, 2},
		{"items envelope", `{"items": [{"id": "1"}]}`, 1},
		{"bare array", `[{"id": "1"}, {"id": "2"}, {"id": "3"}]`, 3},
		{"single object", `{"id": "1"}`, 1},
		{"empty body", ``, 0},
		{"null envelope", `{"itens": null}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := decodeItems([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}
