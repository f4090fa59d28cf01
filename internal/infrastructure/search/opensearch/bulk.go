package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/cloudvista/geocatalog/internal/config"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

// BulkOp is one upsert or delete routed to a specific index.
type BulkOp struct {
	Index      string
	ID         string
	Collection string
	// Doc is the document body for upserts; nil for deletes.
	Doc    interface{}
	Delete bool
}

// BulkWriter sends batched writes to the engine and reports per-item
// outcomes. One failed item never aborts the rest of the batch; the caller
// gets an outcome per operation and decides what to resubmit.
type BulkWriter struct {
	client *Client
	cfg    config.CatalogConfig
	logger logging.Logger
}

// NewBulkWriter returns a BulkWriter over the given client.
func NewBulkWriter(client *Client, cfg config.CatalogConfig, logger logging.Logger) *BulkWriter {
	return &BulkWriter{client: client, cfg: cfg, logger: logger}
}

// Execute runs the operations in request-size batches. With refresh set the
// last batch's writes are visible to search before Execute returns; leaving
// it unset defers visibility to the engine's refresh cycle, which is the
// right default for high-volume ingest.
func (w *BulkWriter) Execute(ctx context.Context, ops []BulkOp, refresh bool) (*catalog.BulkResult, error) {
	result := &catalog.BulkResult{Outcomes: make([]catalog.BulkOutcome, 0, len(ops))}
	if len(ops) == 0 {
		return result, nil
	}

	refreshPolicy := "false"
	if refresh {
		refreshPolicy = "true"
	}

	batchSize := w.cfg.BulkBatchSize
	for start := 0; start < len(ops); start += batchSize {
		end := start + batchSize
		if end > len(ops) {
			end = len(ops)
		}
		if err := w.executeBatch(ctx, ops[start:end], refreshPolicy, result); err != nil {
			return result, err
		}
	}

	w.logger.Info("bulk write completed",
		logging.Int("total", len(ops)),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))
	return result, nil
}

func (w *BulkWriter) executeBatch(ctx context.Context, ops []BulkOp, refresh string, result *catalog.BulkResult) error {
	var buf bytes.Buffer
	// Ops serialized into the NDJSON body, in order; the response items come
	// back in the same order.
	sent := make([]BulkOp, 0, len(ops))

	for _, op := range ops {
		action := "index"
		if op.Delete {
			action = "delete"
		}
		meta, err := json.Marshal(map[string]interface{}{
			action: map[string]interface{}{"_index": op.Index, "_id": op.ID},
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal bulk action")
		}
		buf.Write(meta)
		buf.WriteByte('\n')

		if !op.Delete {
			doc, err := json.Marshal(op.Doc)
			if err != nil {
				result.Failed++
				result.Outcomes = append(result.Outcomes, catalog.BulkOutcome{
					ItemID:     op.ID,
					Collection: op.Collection,
					Reason:     fmt.Sprintf("serialization: %v", err),
				})
				// Roll back the already-written action line.
				buf.Truncate(buf.Len() - len(meta) - 1)
				continue
			}
			buf.Write(doc)
			buf.WriteByte('\n')
		}
		sent = append(sent, op)
	}

	if buf.Len() == 0 {
		return nil
	}

	req := opensearchapi.BulkRequest{
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: refresh,
	}
	resp, err := req.Do(ctx, w.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendUnavailable, "bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return engineError(resp, errors.ErrCodeBulkRequestFailed, "bulk request rejected")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Result string `json:"result"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return errors.Wrap(err, errors.ErrCodeEngineResponse, "failed to decode bulk response")
	}
	if len(bulkResp.Items) != len(sent) {
		return errors.Newf(errors.ErrCodeEngineResponse,
			"bulk response has %d items for %d operations", len(bulkResp.Items), len(sent))
	}

	for i, item := range bulkResp.Items {
		op := sent[i]
		var status int
		var errType, errReason string
		for _, v := range item {
			status = v.Status
			errType = v.Error.Type
			errReason = v.Error.Reason
			break
		}

		// Deleting an item that is not indexed is a no-op, not a failure.
		ok := status >= 200 && status < 300 || (op.Delete && status == 404)
		outcome := catalog.BulkOutcome{
			ItemID:     op.ID,
			Collection: op.Collection,
			Success:    ok,
		}
		if ok {
			result.Succeeded++
		} else {
			result.Failed++
			outcome.Reason = fmt.Sprintf("%s: %s", errType, errReason)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return nil
}
