// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"niloufer-chat-go/internal/config"
	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Client 封装了菜品向量索引上的全部操作。
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 创建 Elasticsearch 客户端并确保菜品索引存在。
// dims 是向量维度，必须与 Embedding 模型的输出一致。
func NewClient(esCfg config.ElasticsearchConfig, dims int) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: es, indexName: esCfg.IndexName}
	if err := c.ensureIndex(dims); err != nil {
		return nil, err
	}
	return c, nil
}

// ensureIndex 检查索引是否存在，不存在则按菜品映射创建。
func (c *Client) ensureIndex(dims int) error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", c.indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"name": { "type": "text" },
				"description": { "type": "text" },
				"category": { "type": "keyword" },
				"sub_category": { "type": "keyword" },
				"calories": { "type": "integer" },
				"price": { "type": "float" },
				"dietary": { "type": "keyword" },
				"ingredients": { "type": "keyword" },
				"is_vegetarian": { "type": "boolean" },
				"is_vegan": { "type": "boolean" },
				"is_gluten_free": { "type": "boolean" },
				"is_high_protein": { "type": "boolean" },
				"is_low_calorie": { "type": "boolean" },
				"is_popular": { "type": "boolean" },
				"model_version": { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// IndexFood 将单个菜品文档索引到 Elasticsearch。
func (c *Client) IndexFood(ctx context.Context, doc model.EsFoodDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引菜品文档出错: %s", res.String())
		return errors.New("failed to index food document")
	}
	return nil
}

// SearchFoods 执行 kNN 向量检索，结构化过滤条件作为合取 filter 下推到 ES。
// 返回结果按相关性降序。
func (c *Client) SearchFoods(ctx context.Context, queryVector []float32, topK int, filter *model.FoodFilter) ([]model.CandidateMatch, error) {
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              topK,
			"num_candidates": topK * 10,
			"filter":         buildFilterClauses(filter),
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[ES] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ES] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsFoodDocument `json:"_source"`
				Score  float64              `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	matches := make([]model.CandidateMatch, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		matches = append(matches, model.CandidateMatch{
			Item:  hit.Source.ToFoodItem(),
			Score: hit.Score,
		})
	}
	return matches, nil
}

// GetFoodByID 按文档 ID 取回单个菜品，不存在时返回 (nil, nil)。
func (c *Client) GetFoodByID(ctx context.Context, id string) (*model.FoodItem, error) {
	req := esapi.GetRequest{Index: c.indexName, DocumentID: id}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var getResponse struct {
		Source model.EsFoodDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&getResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	item := getResponse.Source.ToFoodItem()
	return &item, nil
}

// buildFilterClauses 把 FoodFilter 翻译成 ES 的 filter 子句列表。
func buildFilterClauses(filter *model.FoodFilter) []map[string]interface{} {
	clauses := []map[string]interface{}{}
	if filter == nil {
		return clauses
	}
	if filter.Category != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"category": filter.Category},
		})
	}
	caloriesRange := map[string]interface{}{}
	if filter.MaxCalories != nil {
		caloriesRange["lte"] = *filter.MaxCalories
	}
	if filter.MinCalories != nil {
		caloriesRange["gte"] = *filter.MinCalories
	}
	if len(caloriesRange) > 0 {
		clauses = append(clauses, map[string]interface{}{
			"range": map[string]interface{}{"calories": caloriesRange},
		})
	}
	switch filter.Dietary {
	case "vegetarian":
		clauses = append(clauses, map[string]interface{}{"term": map[string]interface{}{"is_vegetarian": true}})
	case "vegan":
		clauses = append(clauses, map[string]interface{}{"term": map[string]interface{}{"is_vegan": true}})
	case "gluten-free":
		clauses = append(clauses, map[string]interface{}{"term": map[string]interface{}{"is_gluten_free": true}})
	case "high-protein":
		clauses = append(clauses, map[string]interface{}{"term": map[string]interface{}{"is_high_protein": true}})
	}
	if filter.LowCalorie {
		clauses = append(clauses, map[string]interface{}{"term": map[string]interface{}{"is_low_calorie": true}})
	}
	if filter.Popular {
		clauses = append(clauses, map[string]interface{}{"term": map[string]interface{}{"is_popular": true}})
	}
	return clauses
}
