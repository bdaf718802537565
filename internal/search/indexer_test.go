package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHits(t *testing.T) {
	raw := `{
	  "hits": {
	    "hits": [
	      {"_source": {"event_id": 42}, "highlight": {"ip_address": ["<em>10.0.0.5</em>"]}},
	      {"_source": {"event_id": 17}, "highlight": {"username": ["<em>alice</em>"]}},
	      {"_source": {"event_id": 3},  "highlight": {"hostname": ["<em>bastion-01</em>"]}}
	    ]
	  }
	}`

	hits, err := parseHits([]byte(raw))
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, Hit{EventID: 42, MatchField: MatchFieldIP}, hits[0])
	assert.Equal(t, Hit{EventID: 17, MatchField: MatchFieldUsername}, hits[1])
	assert.Equal(t, Hit{EventID: 3, MatchField: MatchFieldHostname}, hits[2])
}

func TestParseHits_FieldPriority(t *testing.T) {
	// When several fields match the same document, ip_address outranks
	// username outranks hostname.
	raw := `{
	  "hits": {
	    "hits": [
	      {"_source": {"event_id": 1}, "highlight": {
	        "hostname": ["<em>x</em>"], "username": ["<em>x</em>"], "ip_address": ["<em>x</em>"]
	      }},
	      {"_source": {"event_id": 2}, "highlight": {
	        "hostname": ["<em>x</em>"], "username": ["<em>x</em>"]
	      }}
	    ]
	  }
	}`

	hits, err := parseHits([]byte(raw))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, MatchFieldIP, hits[0].MatchField)
	assert.Equal(t, MatchFieldUsername, hits[1].MatchField)
}

func TestParseHits_NoHighlight(t *testing.T) {
	raw := `{"hits": {"hits": [{"_source": {"event_id": 7}}]}}`

	hits, err := parseHits([]byte(raw))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(7), hits[0].EventID)
	assert.Empty(t, hits[0].MatchField)
}

func TestParseHits_Empty(t *testing.T) {
	hits, err := parseHits([]byte(`{"hits": {"hits": []}}`))
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestParseHits_Malformed(t *testing.T) {
	_, err := parseHits([]byte(`{broken`))
	assert.Error(t, err)
}
