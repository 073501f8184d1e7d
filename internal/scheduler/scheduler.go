// Package scheduler runs the gateway's background maintenance: a daily
// history prune at a configured time and a daily usage summary.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/config"
	"github.com/energizer-project/rconsole/internal/db"
	"github.com/energizer-project/rconsole/internal/session"
)

const defaultPruneHour = 4

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg     *config.Config
	history *db.HistoryDatabase
	session *session.Session
}

// NewScheduler creates a task scheduler. history may be nil, which
// disables pruning.
func NewScheduler(cfg *config.Config, history *db.HistoryDatabase, sess *session.Session) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		history: history,
		session: sess,
	}
}

// Start runs all scheduled tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.history != nil && s.cfg.GetHistory().MaxEntries > 0 {
		go s.runPruneLoop(ctx)
	}
	go s.runSummaryLoop(ctx)

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runPruneLoop(ctx context.Context) {
	for {
		nextRun := NextRun(s.cfg.GetHistory().PruneAt, time.Now())

		log.Debug().
			Time("next_run", nextRun).
			Msg("history prune scheduled")

		timer := time.NewTimer(time.Until(nextRun))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.PruneHistory()
		}
	}
}

// PruneHistory trims the history table to the configured size.
func (s *Scheduler) PruneHistory() {
	if s.history == nil {
		return
	}

	keep := s.cfg.GetHistory().MaxEntries
	removed, err := s.history.Prune(keep)
	if err != nil {
		log.Warn().Err(err).Msg("history prune failed")
		return
	}

	log.Info().
		Int64("removed", removed).
		Int("kept", keep).
		Msg("history prune completed")
}

func (s *Scheduler) runSummaryLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.LogSummary()
		}
	}
}

// LogSummary logs session counters and the history size.
func (s *Scheduler) LogSummary() {
	info := s.session.Info()

	event := log.Info().
		Str("state", info.State).
		Uint64("commands", info.Commands).
		Uint64("failures", info.Failures).
		Dur("last_latency", info.LastLatency)

	if s.history != nil {
		if n, err := s.history.Count(); err == nil {
			event = event.Int("history_entries", n)
		}
	}
	event.Msg("daily summary")
}

// NextRun returns the first time at or after now whose wall clock equals
// at (HH:MM). An unparsable value falls back to 04:00.
func NextRun(at string, now time.Time) time.Time {
	hour, minute := defaultPruneHour, 0
	if t, err := time.Parse("15:04", at); err == nil {
		hour, minute = t.Hour(), t.Minute()
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
