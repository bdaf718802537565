package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Match field values reported back to the dashboard, matching the column
// names it renders.
const (
	MatchFieldIP       = "ipAddress"
	MatchFieldUsername = "username"
	MatchFieldHostname = "hostname"
)

// indexMapping defines the search document: the store row id, the three
// token-matchable fields, and the event timestamp used only for ordering.
const indexMapping = `{
  "mappings": {
    "properties": {
      "event_id":   {"type": "long"},
      "ip_address": {"type": "text"},
      "username":   {"type": "text"},
      "hostname":   {"type": "text"},
      "timestamp":  {"type": "date"}
    }
  }
}`

// Indexer mirrors stored events into the text-search index, one document per
// event keyed by the store's row identifier.
type Indexer struct {
	os *OpenSearchClient
}

func NewIndexer(os *OpenSearchClient) *Indexer {
	return &Indexer{os: os}
}

// EnsureIndex creates the events index with its mapping if it does not exist.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	exists := opensearchapi.IndicesExistsRequest{Index: []string{ix.os.Index()}}
	res, err := exists.Do(ctx, ix.os.Client())
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	create := opensearchapi.IndicesCreateRequest{
		Index: ix.os.Index(),
		Body:  bytes.NewReader([]byte(indexMapping)),
	}
	cres, err := create.Do(ctx, ix.os.Client())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer cres.Body.Close()
	if cres.IsError() {
		return fmt.Errorf("create index: %s", cres.Status())
	}
	return nil
}

// IndexEvent writes the search entry for a newly inserted event. It is called
// synchronously within the ingestion unit of work so search results are never
// stale relative to a committed event. Events are immutable, so there are no
// update or delete operations.
func (ix *Indexer) IndexEvent(ctx context.Context, eventID int64, ip, username, hostname string, ts time.Time) error {
	doc := map[string]interface{}{
		"event_id":   eventID,
		"ip_address": ip,
		"username":   username,
		"hostname":   hostname,
		"timestamp":  ts.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal index entry: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      ix.os.Index(),
		DocumentID: strconv.FormatInt(eventID, 10),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, ix.os.Client())
	if err != nil {
		return fmt.Errorf("index event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index event: %s", res.Status())
	}
	return nil
}

// Hit is one search match: the owning event id and the field that produced
// the token match.
type Hit struct {
	EventID    int64
	MatchField string
}

// Search runs a token match over ip_address, username, and hostname, ordered
// by event timestamp descending, and reports which field matched per hit.
func (ix *Indexer) Search(ctx context.Context, query string, limit, offset int) ([]Hit, error) {
	body := map[string]interface{}{
		"from": offset,
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"ip_address", "username", "hostname"},
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"ip_address": map[string]interface{}{},
				"username":   map[string]interface{}{},
				"hostname":   map[string]interface{}{},
			},
		},
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "desc"}},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{ix.os.Index()},
		Body:  bytes.NewReader(raw),
	}
	res, err := req.Do(ctx, ix.os.Client())
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.Status())
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return parseHits(data)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				EventID int64 `json:"event_id"`
			} `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// parseHits extracts event ids and matched fields from a raw search response.
// When more than one field matched, ip_address wins over username over
// hostname, mirroring how the dashboard ranks the columns.
func parseHits(data []byte) ([]Hit, error) {
	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{
			EventID:    h.Source.EventID,
			MatchField: matchField(h.Highlight),
		})
	}
	return hits, nil
}

func matchField(highlight map[string][]string) string {
	if len(highlight["ip_address"]) > 0 {
		return MatchFieldIP
	}
	if len(highlight["username"]) > 0 {
		return MatchFieldUsername
	}
	if len(highlight["hostname"]) > 0 {
		return MatchFieldHostname
	}
	return ""
}
