package opensearch

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/cloudvista/geocatalog/internal/config"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/pkg/errors"
)

// SearchInput is one fully assembled search request: targets, query clause,
// sort tuple, cursor position, page size, and aggregation bodies.
type SearchInput struct {
	Indices     []string
	Query       map[string]interface{}
	Sort        []map[string]interface{}
	SearchAfter []interface{}
	Size        int
	Aggs        map[string]interface{}
}

// Hit is one matching document plus the sort tuple the engine computed for
// it. The sort tuple of a page's last hit becomes the continuation token.
type Hit struct {
	ID     string
	Index  string
	Source json.RawMessage
	Sort   []interface{}
}

// SearchOutput is the decoded engine response.
type SearchOutput struct {
	Hits         []Hit
	Total        int64
	Aggregations map[string]json.RawMessage
}

// Executor runs assembled search requests. It owns nothing of query
// semantics: building queries is the translator's and services' job.
type Executor struct {
	client *Client
	cfg    config.OpenSearchConfig
	logger logging.Logger
}

// NewExecutor returns an Executor over the given client.
func NewExecutor(client *Client, cfg config.OpenSearchConfig, logger logging.Logger) *Executor {
	return &Executor{client: client, cfg: cfg, logger: logger}
}

// Search executes the request. Missing indices are tolerated so a search over
// all collections keeps working while a collection is being deleted.
func (e *Executor) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	body := map[string]interface{}{
		"track_total_hits": true,
		"size":             in.Size,
	}
	if in.Query != nil {
		body["query"] = in.Query
	}
	if len(in.Sort) > 0 {
		body["sort"] = in.Sort
	}
	if len(in.SearchAfter) > 0 {
		body["search_after"] = in.SearchAfter
	}
	if len(in.Aggs) > 0 {
		body["aggs"] = in.Aggs
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal search body")
	}

	req := opensearchapi.SearchRequest{
		Index:             in.Indices,
		Body:              bytes.NewReader(raw),
		IgnoreUnavailable: opensearchapi.BoolPtr(true),
	}
	resp, err := req.Do(ctx, e.client.GetClient())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBackendUnavailable, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, engineError(resp, errors.ErrCodeIndexNotFound, "search target does not exist")
	}
	if resp.IsError() {
		return nil, engineError(resp, errors.ErrCodeEngineResponse, "search rejected")
	}

	return decodeSearchResponse(resp)
}

// Count returns the number of documents matching the query.
func (e *Executor) Count(ctx context.Context, indices []string, query map[string]interface{}) (int64, error) {
	body := map[string]interface{}{}
	if query != nil {
		body["query"] = query
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal count body")
	}

	req := opensearchapi.CountRequest{
		Index: indices,
		Body:  bytes.NewReader(raw),
	}
	resp, err := req.Do(ctx, e.client.GetClient())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeBackendUnavailable, "count request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, engineError(resp, errors.ErrCodeEngineResponse, "count rejected")
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeEngineResponse, "failed to decode count response")
	}
	return out.Count, nil
}

// IndexDocument writes one document, used for collection metadata where bulk
// batching buys nothing.
func (e *Executor) IndexDocument(ctx context.Context, index, id string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal document")
	}

	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	resp, err := req.Do(ctx, e.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendUnavailable, "index document request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return engineError(resp, errors.ErrCodeEngineResponse, "index document rejected")
	}
	return nil
}

// GetDocument fetches one document's source; found reports existence.
func (e *Executor) GetDocument(ctx context.Context, index, id string) (json.RawMessage, bool, error) {
	req := opensearchapi.GetRequest{
		Index:      index,
		DocumentID: id,
	}
	resp, err := req.Do(ctx, e.client.GetClient())
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeBackendUnavailable, "get document request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, false, nil
	}
	if resp.IsError() {
		return nil, false, engineError(resp, errors.ErrCodeEngineResponse, "get document rejected")
	}

	var out struct {
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeEngineResponse, "failed to decode get response")
	}
	return out.Source, true, nil
}

// DeleteDocument removes one document; deleting a missing document is not an
// error.
func (e *Executor) DeleteDocument(ctx context.Context, index, id string) error {
	req := opensearchapi.DeleteRequest{
		Index:      index,
		DocumentID: id,
		Refresh:    "true",
	}
	resp, err := req.Do(ctx, e.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendUnavailable, "delete document request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil
	}
	if resp.IsError() {
		return engineError(resp, errors.ErrCodeEngineResponse, "delete document rejected")
	}
	return nil
}

// DeleteByQuery removes every document matching the query and returns the
// number deleted. Aliases are valid targets, so callers need not know which
// physical index holds a document.
func (e *Executor) DeleteByQuery(ctx context.Context, indices []string, query map[string]interface{}, refresh bool) (int64, error) {
	raw, err := json.Marshal(map[string]interface{}{"query": query})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal delete query")
	}

	req := opensearchapi.DeleteByQueryRequest{
		Index:   indices,
		Body:    bytes.NewReader(raw),
		Refresh: opensearchapi.BoolPtr(refresh),
	}
	resp, err := req.Do(ctx, e.client.GetClient())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeBackendUnavailable, "delete by query request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return 0, nil
	}
	if resp.IsError() {
		return 0, engineError(resp, errors.ErrCodeEngineResponse, "delete by query rejected")
	}

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeEngineResponse, "failed to decode delete by query response")
	}
	return out.Deleted, nil
}

// decodeSearchResponse decodes hits, totals, sort tuples, and raw aggregation
// bodies. Numbers decode as json.Number so epoch-millis sort values survive
// the round trip into pagination tokens intact.
func decodeSearchResponse(resp *opensearchapi.Response) (*SearchOutput, error) {
	var body struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Index  string          `json:"_index"`
				Source json.RawMessage `json:"_source"`
				Sort   []interface{}   `json:"sort"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]json.RawMessage `json:"aggregations"`
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEngineResponse, "failed to decode search response")
	}

	out := &SearchOutput{
		Total:        body.Hits.Total.Value,
		Hits:         make([]Hit, 0, len(body.Hits.Hits)),
		Aggregations: body.Aggregations,
	}
	for _, h := range body.Hits.Hits {
		out.Hits = append(out.Hits, Hit{
			ID:     h.ID,
			Index:  h.Index,
			Source: h.Source,
			Sort:   h.Sort,
		})
	}
	return out, nil
}
