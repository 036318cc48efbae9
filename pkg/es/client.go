// Package es 提供了与 Elasticsearch 交互的客户端功能，用于后台检索 agent 输出。
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fundraising-school-go/internal/config"
	"fundraising-school-go/internal/model"
	"fundraising-school-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// OutputIndex 封装 agent_outputs 索引的写入与检索。
type OutputIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewOutputIndex 使用已有客户端构造索引，测试里可以指向 httptest 服务。
func NewOutputIndex(client *elasticsearch.Client, indexName string) *OutputIndex {
	return &OutputIndex{client: client, indexName: indexName}
}

// InitES 初始化 Elasticsearch 客户端并确保索引存在
func InitES(esCfg config.ElasticsearchConfig) (*OutputIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	})
	if err != nil {
		return nil, err
	}
	idx := NewOutputIndex(client, esCfg.IndexName)
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (i *OutputIndex) createIndexIfNotExists() error {
	res, err := i.client.Indices.Exists([]string{i.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := `{
		"mappings": {
			"properties": {
				"output_id": { "type": "keyword" },
				"conversation_id": { "type": "keyword" },
				"agent_slug": { "type": "keyword" },
				"fit_label": { "type": "keyword" },
				"summary": { "type": "text" },
				"company_name": { "type": "text", "fields": { "raw": { "type": "keyword" } } },
				"founder_name": { "type": "text" },
				"founder_email": { "type": "keyword" },
				"connectors": { "type": "text" },
				"created_at": { "type": "date" }
			}
		}
	}`

	res, err = i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", i.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", i.indexName)
	return nil
}

// IndexOutput 写入或覆盖一条 agent 输出。
func (i *OutputIndex) IndexOutput(ctx context.Context, doc model.AgentOutputDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.indexName,
		DocumentID: doc.OutputID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index agent output")
	}
	return nil
}

// DeleteOutput 删除一条文档，文档不存在不算错误。
func (i *OutputIndex) DeleteOutput(ctx context.Context, outputID string) error {
	req := esapi.DeleteRequest{Index: i.indexName, DocumentID: outputID}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除 Elasticsearch 文档失败: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchOutputIDs 在指定 agent 下做全文检索，按相关度返回 output id。
func (i *OutputIndex) SearchOutputIDs(ctx context.Context, agentSlug, query string, size int) ([]string, error) {
	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"agent_slug": agentSlug}},
				},
				"must": []any{
					map[string]any{"multi_match": map[string]any{
						"query":  query,
						"fields": []string{"company_name^3", "founder_name^2", "summary", "connectors", "founder_email", "fit_label"},
					}},
				},
			},
		},
		"_source": false,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch 检索失败: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析检索结果失败: %w", err)
	}
	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}
