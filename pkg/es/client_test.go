package es

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *OutputIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewOutputIndex(client, "agent_outputs")
}

func TestSearchOutputIDsKeepsRelevanceOrder(t *testing.T) {
	var body map[string]any
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent_outputs/_search", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"hits":{"total":{"value":2},"hits":[{"_id":"out-2","_score":3.1},{"_id":"out-1","_score":1.2}]}}`))
	})

	ids, err := idx.SearchOutputIDs(context.Background(), "friendly-vc-analyst", "fintech", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"out-2", "out-1"}, ids)

	assert.EqualValues(t, 50, body["size"])
	raw, _ := json.Marshal(body["query"])
	assert.Contains(t, string(raw), `"agent_slug":"friendly-vc-analyst"`)
	assert.Contains(t, string(raw), `"query":"fintech"`)
}

func TestSearchOutputIDsReturnsErrorStatus(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"parsing_exception"},"status":400}`))
	})

	_, err := idx.SearchOutputIDs(context.Background(), "friendly-vc-analyst", "x", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing_exception")
}

func TestDeleteOutputIgnoresMissingDocument(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/_doc/gone"))
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"result":"not_found"}`))
	})

	assert.NoError(t, idx.DeleteOutput(context.Background(), "gone"))
}
