package knowledge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeElasticsearch 处理单索引请求的内存版ES
type fakeElasticsearch struct {
	mu       sync.Mutex
	exists   bool
	docs     map[string]string
	failBulk bool
	requests []string
	mapping  []byte
}

func (f *fakeElasticsearch) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.Method+" "+req.URL.Path)

	path := strings.Trim(req.URL.Path, "/")
	switch {
	case req.Method == http.MethodHead && path == "":
		return f.respond(http.StatusOK, `{}`), nil
	case req.Method == http.MethodDelete && path == "sentences":
		if !f.exists {
			return f.respond(http.StatusNotFound, `{"error":{"type":"index_not_found_exception"},"status":404}`), nil
		}
		f.exists = false
		f.docs = nil
		return f.respond(http.StatusOK, `{"acknowledged":true}`), nil
	case req.Method == http.MethodPut && path == "sentences":
		f.exists = true
		f.docs = make(map[string]string)
		if req.Body != nil {
			f.mapping, _ = io.ReadAll(req.Body)
		}
		return f.respond(http.StatusOK, `{"acknowledged":true,"index":"sentences"}`), nil
	case path == "_bulk":
		return f.bulk(req.Body), nil
	case path == "sentences/_count":
		return f.respond(http.StatusOK, `{"count":`+itoaJSON(len(f.docs))+`}`), nil
	case strings.HasPrefix(path, "sentences/_doc/"):
		id := strings.TrimPrefix(path, "sentences/_doc/")
		text, ok := f.docs[id]
		if !ok {
			return f.respond(http.StatusNotFound, `{"_index":"sentences","_id":"`+id+`","found":false}`), nil
		}
		body, _ := json.Marshal(map[string]interface{}{
			"_index": "sentences", "_id": id, "found": true,
			"_source": map[string]interface{}{"full_text": text},
		})
		return f.respond(http.StatusOK, string(body)), nil
	}
	return f.respond(http.StatusBadRequest, `{"error":"unexpected request"}`), nil
}

func (f *fakeElasticsearch) bulk(body io.Reader) *http.Response {
	scanner := bufio.NewScanner(body)
	var items []map[string]interface{}
	for scanner.Scan() {
		var meta struct {
			Index struct {
				ID string `json:"_id"`
			} `json:"index"`
		}
		_ = json.Unmarshal(scanner.Bytes(), &meta)
		if !scanner.Scan() {
			break
		}
		var doc struct {
			FullText string `json:"full_text"`
		}
		_ = json.Unmarshal(scanner.Bytes(), &doc)

		item := map[string]interface{}{"_id": meta.Index.ID, "status": 201}
		if f.failBulk {
			item["status"] = 429
			item["error"] = map[string]interface{}{"type": "es_rejected_execution_exception", "reason": "queue full"}
		} else {
			f.docs[meta.Index.ID] = doc.FullText
		}
		items = append(items, map[string]interface{}{"index": item})
	}
	payload, _ := json.Marshal(map[string]interface{}{"errors": f.failBulk, "items": items})
	return f.respond(http.StatusOK, string(payload))
}

func (f *fakeElasticsearch) respond(status int, body string) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func itoaJSON(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newElasticStore(t *testing.T, fake *fakeElasticsearch) *ElasticsearchTextStore {
	t.Helper()
	store, err := NewElasticsearchTextStore(ElasticsearchOptions{
		Addresses: []string{"http://es.test:9200"},
		Index:     "sentences",
		Transport: fake,
	})
	require.NoError(t, err)
	return store
}

func TestElasticsearchTextStore_RoundTrip(t *testing.T) {
	fake := &fakeElasticsearch{}
	store := newElasticStore(t, fake)
	ctx := context.Background()

	require.NoError(t, store.Reset(ctx))
	require.NoError(t, store.UpsertBatch(ctx, []TextRecord{
		{ID: "a", Text: "Alpha", Sequence: 0},
		{ID: "b", Text: "Beta", Sequence: 1},
	}))

	text, found, err := store.Lookup(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Alpha", text)

	_, found, err = store.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 再次重建会清空数据
	require.NoError(t, store.Reset(ctx))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestElasticsearchTextStore_ResetSendsMapping(t *testing.T) {
	fake := &fakeElasticsearch{}
	store := newElasticStore(t, fake)
	require.NoError(t, store.Reset(context.Background()))

	var mapping struct {
		Mappings struct {
			Properties map[string]struct {
				Type  string `json:"type"`
				Index *bool  `json:"index"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(fake.mapping, &mapping))
	fullText := mapping.Mappings.Properties["full_text"]
	assert.Equal(t, "text", fullText.Type)
	require.NotNil(t, fullText.Index)
	assert.False(t, *fullText.Index)
	assert.Equal(t, "integer", mapping.Mappings.Properties["sequence"].Type)
}

func TestElasticsearchTextStore_BulkItemErrors(t *testing.T) {
	fake := &fakeElasticsearch{}
	store := newElasticStore(t, fake)
	ctx := context.Background()
	require.NoError(t, store.Reset(ctx))

	fake.failBulk = true
	err := store.UpsertBatch(ctx, []TextRecord{{ID: "a", Text: "Alpha"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestNewElasticsearchTextStore_RequiresAddresses(t *testing.T) {
	_, err := NewElasticsearchTextStore(ElasticsearchOptions{})
	assert.Error(t, err)
}
