package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshwatch/sshwatch/internal/anomaly"
	"github.com/sshwatch/sshwatch/internal/broadcast"
	"github.com/sshwatch/sshwatch/internal/logging"
	"github.com/sshwatch/sshwatch/internal/models"
)

type mockStore struct {
	insertFunc func(ctx context.Context, e *models.Event) (int64, bool, error)
	dupFunc    func(ctx context.Context, rawMessage string, ts time.Time, username string) (bool, error)

	inserted []*models.Event
	probes   []string
}

func (m *mockStore) InsertEvent(ctx context.Context, e *models.Event) (int64, bool, error) {
	m.inserted = append(m.inserted, e)
	if m.insertFunc != nil {
		return m.insertFunc(ctx, e)
	}
	return int64(len(m.inserted)), true, nil
}

func (m *mockStore) FindDuplicate(ctx context.Context, rawMessage string, ts time.Time, username string) (bool, error) {
	m.probes = append(m.probes, rawMessage)
	if m.dupFunc != nil {
		return m.dupFunc(ctx, rawMessage, ts, username)
	}
	return false, nil
}

type mockIndex struct {
	err     error
	indexed []int64
}

func (m *mockIndex) IndexEvent(ctx context.Context, eventID int64, ip, username, hostname string, ts time.Time) error {
	m.indexed = append(m.indexed, eventID)
	return m.err
}

type mockScorer struct {
	result anomaly.Result
	err    error
	ips    []string
}

func (m *mockScorer) Score(ctx context.Context, ip string) (anomaly.Result, error) {
	m.ips = append(m.ips, ip)
	if m.err != nil {
		return anomaly.Result{}, m.err
	}
	return m.result, nil
}

type published struct {
	topic broadcast.Topic
	msg   models.StreamMessage
}

type mockHub struct {
	msgs []published
}

func (m *mockHub) Publish(topic broadcast.Topic, msg models.StreamMessage) {
	m.msgs = append(m.msgs, published{topic: topic, msg: msg})
}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.DiscardHandler)}
}

func testRecord(content string) models.VectorRecord {
	return models.VectorRecord{
		TS:         "2026-08-30T10:15:42.123Z",
		Hostname:   "bastion-01",
		Process:    "sshd",
		Content:    content,
		EventType:  models.EventTypeLogin,
		Status:     models.StatusFailed,
		Username:   "alice",
		SourceUser: "alice",
		IPAddress:  "203.0.113.7",
		AuthMethod: "password",
	}
}

func newTestIngestor() (*Ingestor, *mockStore, *mockIndex, *mockScorer, *mockHub) {
	store := &mockStore{}
	index := &mockIndex{}
	scorer := &mockScorer{}
	hub := &mockHub{}
	return NewIngestor(store, index, scorer, hub, testLogger()), store, index, scorer, hub
}

func TestIngestBatch_AcceptedRecord(t *testing.T) {
	in, store, index, scorer, hub := newTestIngestor()

	err := in.IngestBatch(context.Background(), []models.VectorRecord{
		testRecord("Failed password for alice from 203.0.113.7 port 40022 ssh2"),
	})
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	e := store.inserted[0]
	assert.Equal(t, "alice", e.Username)
	assert.Equal(t, "203.0.113.7", e.IPAddress)
	assert.Equal(t, models.StatusFailed, e.Status)

	// Event time is normalized to UTC second precision.
	assert.Equal(t, time.Date(2026, 8, 30, 10, 15, 42, 0, time.UTC), e.Timestamp)

	require.Len(t, index.indexed, 1)
	assert.Equal(t, []string{"203.0.113.7"}, scorer.ips)

	require.Len(t, hub.msgs, 1)
	assert.Equal(t, broadcast.TopicEvents, hub.msgs[0].topic)
	assert.Equal(t, models.StreamTypeEvent, hub.msgs[0].msg.Type)
}

func TestIngestBatch_EmptyContentSkipped(t *testing.T) {
	in, store, _, _, hub := newTestIngestor()

	rec := testRecord("")
	err := in.IngestBatch(context.Background(), []models.VectorRecord{rec})
	require.NoError(t, err)

	assert.Empty(t, store.probes)
	assert.Empty(t, store.inserted)
	assert.Empty(t, hub.msgs)
}

func TestIngestBatch_BadTimestampSkipped(t *testing.T) {
	in, store, _, _, hub := newTestIngestor()

	rec := testRecord("Accepted publickey for alice")
	rec.TS = "yesterday"
	err := in.IngestBatch(context.Background(), []models.VectorRecord{rec})
	require.NoError(t, err)

	assert.Empty(t, store.inserted)
	assert.Empty(t, hub.msgs)
}

func TestIngestBatch_DuplicateProbe(t *testing.T) {
	in, store, index, _, hub := newTestIngestor()
	store.dupFunc = func(ctx context.Context, rawMessage string, ts time.Time, username string) (bool, error) {
		return true, nil
	}

	err := in.IngestBatch(context.Background(), []models.VectorRecord{
		testRecord("Failed password for alice from 203.0.113.7 port 40022 ssh2"),
	})
	require.NoError(t, err)

	assert.Empty(t, store.inserted)
	assert.Empty(t, index.indexed)
	assert.Empty(t, hub.msgs)
}

func TestIngestBatch_DuplicateInsertRace(t *testing.T) {
	in, store, index, _, hub := newTestIngestor()
	store.insertFunc = func(ctx context.Context, e *models.Event) (int64, bool, error) {
		return 0, false, nil
	}

	err := in.IngestBatch(context.Background(), []models.VectorRecord{
		testRecord("Failed password for alice from 203.0.113.7 port 40022 ssh2"),
	})
	require.NoError(t, err)

	// Losing the unique-constraint race is a silent discard, not a failure.
	assert.Empty(t, index.indexed)
	assert.Empty(t, hub.msgs)
}

func TestIngestBatch_ResendIsIdempotent(t *testing.T) {
	in, store, _, _, hub := newTestIngestor()

	seen := map[string]bool{}
	store.dupFunc = func(ctx context.Context, rawMessage string, ts time.Time, username string) (bool, error) {
		return seen[rawMessage], nil
	}
	store.insertFunc = func(ctx context.Context, e *models.Event) (int64, bool, error) {
		seen[e.RawMessage] = true
		return 1, true, nil
	}

	batch := []models.VectorRecord{
		testRecord("Failed password for alice from 203.0.113.7 port 40022 ssh2"),
	}
	require.NoError(t, in.IngestBatch(context.Background(), batch))
	require.NoError(t, in.IngestBatch(context.Background(), batch))

	assert.Len(t, store.inserted, 1)
	assert.Len(t, hub.msgs, 1)
}

func TestIngestBatch_StoreErrorAbortsBatch(t *testing.T) {
	in, store, _, _, hub := newTestIngestor()

	calls := 0
	store.insertFunc = func(ctx context.Context, e *models.Event) (int64, bool, error) {
		calls++
		if calls == 2 {
			return 0, false, errors.New("connection reset")
		}
		return int64(calls), true, nil
	}

	err := in.IngestBatch(context.Background(), []models.VectorRecord{
		testRecord("first"),
		testRecord("second"),
		testRecord("third"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")

	// The third record is never attempted.
	assert.Equal(t, 2, calls)
	assert.Len(t, hub.msgs, 1)
}

func TestIngestBatch_IndexFailureDoesNotReject(t *testing.T) {
	in, _, index, _, hub := newTestIngestor()
	index.err = errors.New("opensearch unavailable")

	err := in.IngestBatch(context.Background(), []models.VectorRecord{
		testRecord("Failed password for alice from 203.0.113.7 port 40022 ssh2"),
	})
	require.NoError(t, err)

	// The event is durable in the store, so it is still broadcast.
	require.Len(t, hub.msgs, 1)
}

func TestIngestBatch_ScorerFailurePublishesPlainEvent(t *testing.T) {
	in, _, _, scorer, hub := newTestIngestor()
	scorer.err = errors.New("store timeout")

	err := in.IngestBatch(context.Background(), []models.VectorRecord{
		testRecord("Failed password for alice from 203.0.113.7 port 40022 ssh2"),
	})
	require.NoError(t, err)

	require.Len(t, hub.msgs, 1)
	assert.Equal(t, broadcast.TopicEvents, hub.msgs[0].topic)
	assert.Nil(t, hub.msgs[0].msg.IsSuspicious)
}

func TestIngestBatch_SuspiciousEventDualPublish(t *testing.T) {
	in, _, _, scorer, hub := newTestIngestor()
	scorer.result = anomaly.Result{NewSource: true, Suspicious: true}

	err := in.IngestBatch(context.Background(), []models.VectorRecord{
		testRecord("Failed password for alice from 203.0.113.7 port 40022 ssh2"),
	})
	require.NoError(t, err)

	require.Len(t, hub.msgs, 2)
	assert.Equal(t, broadcast.TopicEvents, hub.msgs[0].topic)
	assert.Equal(t, models.StreamTypeEvent, hub.msgs[0].msg.Type)

	assert.Equal(t, broadcast.TopicSuspicious, hub.msgs[1].topic)
	assert.Equal(t, models.StreamTypeSuspicious, hub.msgs[1].msg.Type)
	require.NotNil(t, hub.msgs[1].msg.IsNewLoginSource)
	require.NotNil(t, hub.msgs[1].msg.IsSuspicious)
	assert.True(t, *hub.msgs[1].msg.IsNewLoginSource)
	assert.True(t, *hub.msgs[1].msg.IsSuspicious)
}

func TestIngestBatch_NewSourceOnlyStillFlagged(t *testing.T) {
	in, _, _, scorer, hub := newTestIngestor()
	scorer.result = anomaly.Result{NewSource: true, Suspicious: false}

	err := in.IngestBatch(context.Background(), []models.VectorRecord{
		testRecord("Accepted password for alice from 203.0.113.7 port 40022 ssh2"),
	})
	require.NoError(t, err)

	require.Len(t, hub.msgs, 2)
	assert.Equal(t, broadcast.TopicSuspicious, hub.msgs[1].topic)
	assert.True(t, *hub.msgs[1].msg.IsNewLoginSource)
	assert.False(t, *hub.msgs[1].msg.IsSuspicious)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{
			name: "subsecond precision truncated",
			in:   "2026-08-30T10:15:42.999Z",
			want: time.Date(2026, 8, 30, 10, 15, 42, 0, time.UTC),
		},
		{
			name: "offset normalized to UTC",
			in:   "2026-08-30T12:15:42+02:00",
			want: time.Date(2026, 8, 30, 10, 15, 42, 0, time.UTC),
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
		{
			name:    "syslog format rejected",
			in:      "Aug 30 10:15:42",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}
