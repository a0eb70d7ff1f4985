package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/attendix/attendix/internal/common/database"
)

// DecisionsIndex is the search index decision records are dual-written to.
const DecisionsIndex = "attendance_decisions"

// decisionsMapping pins field types so term and range filters behave; the
// identifier fields are keywords, the timestamp is a date.
const decisionsMapping = `{
	"mappings": {
		"properties": {
			"id":         {"type": "keyword"},
			"timestamp":  {"type": "date"},
			"action":     {"type": "keyword"},
			"user_id":    {"type": "keyword"},
			"site_id":    {"type": "keyword"},
			"outcome":    {"type": "keyword"},
			"reason":     {"type": "keyword"},
			"risk_score": {"type": "integer"},
			"warnings":   {"type": "keyword"},
			"ip":         {"type": "keyword"},
			"user_agent": {"type": "text"}
		}
	}
}`

// EnsureDecisionsIndex creates the decisions index with its mapping if it
// does not exist yet.
func EnsureDecisionsIndex(es *database.ElasticsearchClient) error {
	return es.EnsureIndex(DecisionsIndex, decisionsMapping)
}

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// SearchQuery narrows a decision search. Zero-valued fields are not
// filtered on.
type SearchQuery struct {
	UserID  string
	Outcome string
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Searcher serves the decision review surface from the search index.
type Searcher struct {
	es     *database.ElasticsearchClient
	logger *zap.Logger
}

// NewSearcher creates a searcher over the decisions index.
func NewSearcher(es *database.ElasticsearchClient, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		es:     es,
		logger: logger.With(zap.String("component", "audit_searcher")),
	}
}

// Search returns matching decision records newest-first along with the total
// hit count, which may exceed the page returned.
func (s *Searcher) Search(q SearchQuery) ([]Record, int, error) {
	body, err := buildSearchQuery(q)
	if err != nil {
		return nil, 0, fmt.Errorf("build decision query: %w", err)
	}

	raw, err := s.es.Search(DecisionsIndex, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	var resp database.EsSearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode decision search response: %w", err)
	}

	recs := make([]Record, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var rec Record
		if err := json.Unmarshal(hit.Source, &rec); err != nil {
			s.logger.Warn("skipping malformed decision document", zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, resp.Hits.Total.Value, nil
}

func buildSearchQuery(q SearchQuery) ([]byte, error) {
	filters := []map[string]interface{}{}
	if q.UserID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"user_id": q.UserID},
		})
	}
	if q.Outcome != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"outcome": q.Outcome},
		})
	}
	if !q.Since.IsZero() || !q.Until.IsZero() {
		rng := map[string]interface{}{}
		if !q.Since.IsZero() {
			rng["gte"] = q.Since.UTC().Format(time.RFC3339)
		}
		if !q.Until.IsZero() {
			rng["lte"] = q.Until.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"timestamp": rng},
		})
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	query := map[string]interface{}{
		"size": limit,
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
	}
	return json.Marshal(query)
}
