package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"notification-engine/internal/models"
)

// ElasticsearchSink mirrors entries into a search index for support tooling. Documents are keyed by
// entry id, so a replayed write overwrites rather than duplicates.
type ElasticsearchSink struct {
	es    *elasticsearch.Client
	index string
}

var _ Sink = (*ElasticsearchSink)(nil)

// IndexMapping keeps identifiers as exact-match keywords so support tooling can filter a trail.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "fingerprint":   {"type": "keyword"},
      "recipientId":   {"type": "keyword"},
      "jobId":         {"type": "keyword"},
      "eventType":     {"type": "keyword"},
      "outcome":       {"type": "keyword"},
      "reason":        {"type": "text"},
      "timestamp":     {"type": "date"},
      "priority":      {"type": "keyword"},
      "sourceTrigger": {"type": "keyword"},
      "channel":       {"type": "keyword"},
      "deliveryId":    {"type": "keyword"}
    }
  }
}`

func NewElasticsearchSink(es *elasticsearch.Client, index string) *ElasticsearchSink {
	if index == "" {
		index = "notification-audit"
	}
	return &ElasticsearchSink{es: es, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Append(ctx context.Context, e models.AuditEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode %s: %w", e.ID, err)
	}

	res, err := s.es.Index(
		s.index,
		bytes.NewReader(body),
		s.es.Index.WithDocumentID(e.ID),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("audit: index %s: %w", e.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("audit: index %s: %s", e.ID, res.Status())
	}
	return nil
}
