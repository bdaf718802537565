// Package anomaly scores event sources for suspicious behavior over a
// trailing reputation window.
package anomaly

import (
	"context"
	"time"

	"github.com/sshwatch/sshwatch/internal/config"
	"github.com/sshwatch/sshwatch/internal/metrics"
	"github.com/sshwatch/sshwatch/internal/repository"
)

// ActivityStore provides the windowed aggregate the scorer reads.
type ActivityStore interface {
	SourceActivity(ctx context.Context, ip string, since, recentSince time.Time, rowCap int) (*repository.SourceActivity, error)
}

// Result is the reputation signal for one source IP.
type Result struct {
	NewSource  bool
	Suspicious bool
}

// Scorer computes a per-IP reputation signal over a trailing window. It is
// stateless: every call reads the event store fresh, so the result reflects
// store state as of the call. Two events from the same IP scored concurrently
// may both observe pre-insert counts; the signal is eventually consistent,
// not serializable.
type Scorer struct {
	store ActivityStore
	cfg   config.AnomalyConfig
}

func NewScorer(store ActivityStore, cfg config.AnomalyConfig) *Scorer {
	return &Scorer{store: store, cfg: cfg}
}

// Score evaluates the source IP against the trailing window. A source with no
// history at all is new but never suspicious, regardless of the status of the
// event that triggered scoring.
func (s *Scorer) Score(ctx context.Context, ip string) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.ScoreDuration.Observe(time.Since(start).Seconds())
	}()

	now := time.Now()
	activity, err := s.store.SourceActivity(ctx, ip,
		now.Add(-s.cfg.Window), now.Add(-s.cfg.RecentWindow), s.cfg.RowCap)
	if err != nil {
		metrics.ScoreErrors.Inc()
		return Result{}, err
	}

	return s.evaluate(activity), nil
}

func (s *Scorer) evaluate(a *repository.SourceActivity) Result {
	if a.Total == 0 {
		return Result{NewSource: true, Suspicious: false}
	}

	var failureRate float64
	if a.Total > 0 {
		failureRate = float64(a.Failed) / float64(a.Total)
	}

	suspicious := (a.Total > s.cfg.MinAttempts && failureRate > s.cfg.FailureRate) ||
		(a.DistinctUsernames > s.cfg.MinUsernames && failureRate > s.cfg.SprayFailureRate) ||
		a.RecentFailures > s.cfg.RecentFailures

	if suspicious {
		metrics.SuspiciousEvents.Inc()
	}

	return Result{
		NewSource:  a.Total < s.cfg.NewSourceMax,
		Suspicious: suspicious,
	}
}
