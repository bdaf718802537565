// Package service wires the ingestion pipeline: normalize, deduplicate,
// store, index, score, broadcast.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sshwatch/sshwatch/internal/anomaly"
	"github.com/sshwatch/sshwatch/internal/broadcast"
	"github.com/sshwatch/sshwatch/internal/logging"
	"github.com/sshwatch/sshwatch/internal/metrics"
	"github.com/sshwatch/sshwatch/internal/models"
)

// EventStore is the persistence surface the pipeline writes to.
type EventStore interface {
	InsertEvent(ctx context.Context, e *models.Event) (int64, bool, error)
	FindDuplicate(ctx context.Context, rawMessage string, ts time.Time, username string) (bool, error)
}

// EventIndex mirrors accepted events into the text-search structure.
type EventIndex interface {
	IndexEvent(ctx context.Context, eventID int64, ip, username, hostname string, ts time.Time) error
}

// SourceScorer computes the reputation signal for an event's source IP.
type SourceScorer interface {
	Score(ctx context.Context, ip string) (anomaly.Result, error)
}

// Publisher fans accepted events out to live-stream observers.
type Publisher interface {
	Publish(topic broadcast.Topic, msg models.StreamMessage)
}

type Ingestor struct {
	store  EventStore
	index  EventIndex
	scorer SourceScorer
	hub    Publisher
	logger *logging.Logger
}

func NewIngestor(store EventStore, index EventIndex, scorer SourceScorer, hub Publisher, logger *logging.Logger) *Ingestor {
	return &Ingestor{
		store:  store,
		index:  index,
		scorer: scorer,
		hub:    hub,
		logger: logger,
	}
}

// IngestBatch processes one shipper batch. Records are handled sequentially:
// empty or malformed records are skipped, duplicates are discarded, and each
// accepted record is stored, indexed, scored, and broadcast. Only a store
// failure aborts the batch; the shipper retries the whole batch in that case.
func (in *Ingestor) IngestBatch(ctx context.Context, records []models.VectorRecord) error {
	for i := range records {
		if err := in.ingestRecord(ctx, &records[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func (in *Ingestor) ingestRecord(ctx context.Context, rec *models.VectorRecord) error {
	metrics.RecordsReceived.Inc()

	// Partial batches are expected; records without content are not an error.
	if rec.Content == "" {
		metrics.RecordsSkipped.Inc()
		return nil
	}

	ts, err := parseTimestamp(rec.TS)
	if err != nil {
		metrics.RecordsSkipped.Inc()
		in.logger.DebugContext(ctx, "Skipping record with unparseable timestamp",
			logging.IP(rec.IPAddress), logging.Error(err))
		return nil
	}

	// Fast-path probe for shipper retries that resend the identical payload.
	// The store's unique constraint remains the authoritative guard.
	dup, err := in.store.FindDuplicate(ctx, rec.Content, ts, rec.Username)
	if err != nil {
		return err
	}
	if dup {
		metrics.EventsDuplicate.Inc()
		return nil
	}

	event := &models.Event{
		Timestamp:  ts,
		EventType:  rec.EventType,
		Username:   rec.Username,
		Hostname:   rec.Hostname,
		IPAddress:  rec.IPAddress,
		Status:     rec.Status,
		AuthMethod: rec.AuthMethod,
		RawMessage: rec.Content,
		CreatedAt:  time.Now(),
	}

	id, inserted, err := in.store.InsertEvent(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		// Lost a duplicate-key race with a concurrent writer: already stored.
		metrics.EventsDuplicate.Inc()
		return nil
	}
	event.ID = id
	metrics.EventsAccepted.Inc()

	// Index sync runs in the same ingestion unit of work. The event is
	// already durable, so an index failure degrades searchability but does
	// not reject the record.
	if err := in.index.IndexEvent(ctx, id, event.IPAddress, event.Username, event.Hostname, event.Timestamp); err != nil {
		metrics.IndexSyncErrors.Inc()
		in.logger.ErrorContext(ctx, "Search index sync failed",
			logging.EventID(id), logging.Error(err))
	}

	in.broadcastEvent(ctx, event)
	return nil
}

// broadcastEvent scores the event's source and publishes it. A scorer failure
// degrades the reputation to unknown and never blocks acceptance.
func (in *Ingestor) broadcastEvent(ctx context.Context, event *models.Event) {
	result, err := in.scorer.Score(ctx, event.IPAddress)
	if err != nil {
		in.logger.WarnContext(ctx, "Anomaly scoring failed",
			logging.IP(event.IPAddress), logging.Error(err))
		in.hub.Publish(broadcast.TopicEvents, models.StreamMessage{
			Type:  models.StreamTypeEvent,
			Event: event,
		})
		return
	}

	in.hub.Publish(broadcast.TopicEvents, models.StreamMessage{
		Type:  models.StreamTypeEvent,
		Event: event,
	})

	if result.NewSource || result.Suspicious {
		newSource, suspicious := result.NewSource, result.Suspicious
		in.hub.Publish(broadcast.TopicSuspicious, models.StreamMessage{
			Type:             models.StreamTypeSuspicious,
			Event:            event,
			IsNewLoginSource: &newSource,
			IsSuspicious:     &suspicious,
		})
	}
}

// parseTimestamp converts the shipper's event time to store event time,
// truncated to second precision so retransmissions probe identically.
func parseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Second), nil
}
