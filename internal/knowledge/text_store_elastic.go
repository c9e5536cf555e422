package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchOptions ES连接参数
type ElasticsearchOptions struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	Index     string
	Transport http.RoundTripper
}

// ElasticsearchTextStore 以ES文档ID作为切片ID的文本存储
type ElasticsearchTextStore struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticsearchTextStore 创建ES文本存储
func NewElasticsearchTextStore(opts ElasticsearchOptions) (*ElasticsearchTextStore, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses not configured")
	}
	if opts.Index == "" {
		opts.Index = "sentences"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
		Transport: opts.Transport,
	})
	if err != nil {
		return nil, err
	}

	return &ElasticsearchTextStore{client: client, index: opts.Index}, nil
}

func (e *ElasticsearchTextStore) Reset(ctx context.Context) error {
	deleteReq := esapi.IndicesDeleteRequest{
		Index: []string{e.index},
	}
	deleteResp, err := deleteReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer deleteResp.Body.Close()
	if deleteResp.IsError() && deleteResp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete index error: %s", deleteResp.String())
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"full_text": map[string]interface{}{"type": "text", "index": false},
				"sequence":  map[string]interface{}{"type": "integer"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to encode index mapping: %w", err)
	}
	createReq := esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer createResp.Body.Close()

	if createResp.IsError() {
		return fmt.Errorf("create index error: %s", createResp.String())
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// UpsertBatch 使用 _bulk index 动作写入并刷新，同ID覆盖
func (e *ElasticsearchTextStore) UpsertBatch(ctx context.Context, records []TextRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": e.index, "_id": r.ID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(map[string]interface{}{"full_text": r.Text, "sequence": r.Sequence}); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("bulk error: %s", resp.String())
	}

	var result bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if result.Errors {
		var failed []string
		for _, item := range result.Items {
			for _, action := range item {
				if action.Error != nil {
					failed = append(failed, fmt.Sprintf("%s: %s", action.ID, action.Error.Reason))
				}
			}
		}
		return fmt.Errorf("bulk index failed for %d documents: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

func (e *ElasticsearchTextStore) Lookup(ctx context.Context, id string) (string, bool, error) {
	req := esapi.GetRequest{
		Index:      e.index,
		DocumentID: id,
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("get document error: %s", resp.String())
	}

	var doc struct {
		Found  bool `json:"found"`
		Source struct {
			FullText string `json:"full_text"`
		} `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", false, err
	}
	if !doc.Found {
		return "", false, nil
	}
	return doc.Source.FullText, true, nil
}

func (e *ElasticsearchTextStore) Count(ctx context.Context) (int64, error) {
	req := esapi.CountRequest{
		Index: []string{e.index},
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, fmt.Errorf("count error: %s", resp.String())
	}

	var result struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (e *ElasticsearchTextStore) Ready() bool {
	resp, err := e.client.Ping()
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return !resp.IsError()
}

func (e *ElasticsearchTextStore) Close() error {
	return nil
}
