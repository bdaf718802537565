package models

// EventListResponse is the paginated read response.
type EventListResponse struct {
	Events []Event `json:"events"`
	Total  int64   `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// UserStat is one row of the per-user attempt breakdown.
type UserStat struct {
	Username string `json:"username"`
	Total    int64  `json:"total"`
	Failed   int64  `json:"failed"`
	Success  int64  `json:"success"`
}

// StatsTotals holds the aggregate login outcome counts.
type StatsTotals struct {
	LoginSuccess int64 `json:"loginSuccess"`
	LoginFailed  int64 `json:"loginFailed"`
}

// StatsResponse is the statistics endpoint response.
type StatsResponse struct {
	Total     StatsTotals `json:"total"`
	UserStats []UserStat  `json:"userStats"`
}

// SearchResult is one full-text search hit: the event plus the field that
// produced the token match.
type SearchResult struct {
	Event
	MatchField string `json:"match_field,omitempty"`
}

// SearchResponse is the full-text search response.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Query   string         `json:"query"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// Stream message types pushed on the live event stream.
const (
	StreamTypeConnected  = "connected"
	StreamTypeEvent      = "event"
	StreamTypeSuspicious = "suspicious"
)

// StreamMessage is one frame on the live event stream. Connected frames carry
// no event; suspicious frames carry the anomaly flags.
type StreamMessage struct {
	Type             string `json:"type"`
	Event            *Event `json:"event,omitempty"`
	IsNewLoginSource *bool  `json:"isNewLoginSource,omitempty"`
	IsSuspicious     *bool  `json:"isSuspicious,omitempty"`
}
