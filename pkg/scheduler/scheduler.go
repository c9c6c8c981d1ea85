// Package scheduler runs the top-level cadence loop: wake at aligned
// wall-clock boundaries, evaluate the window gate, run at most one submission
// attempt, and write exactly one audit record per cycle.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forecasthq/forecast-submitter/pkg/gate"
	"github.com/forecasthq/forecast-submitter/pkg/logger"
	"github.com/forecasthq/forecast-submitter/pkg/metrics"
	"github.com/forecasthq/forecast-submitter/pkg/models"
)

// WindowGate evaluates whether the current window permits a submission.
type WindowGate interface {
	Evaluate(ctx context.Context) (models.GateResult, error)
}

// AttemptRunner drives one submission attempt to a terminal audit record.
type AttemptRunner interface {
	Run(ctx context.Context) models.AttemptRecord
}

// Recorder appends one audit record per cycle.
type Recorder interface {
	Record(ctx context.Context, rec models.AttemptRecord) error
}

// Config holds the scheduler's parameters.
type Config struct {
	Period time.Duration
	// RunUntil is an optional deadline; when reached the scheduler stops
	// cleanly before starting another cycle.
	RunUntil *time.Time
	Actor    string
}

// Scheduler owns the run loop. Exactly one instance may run per actor
// identity: the remote system treats duplicate submissions as a hard
// correctness violation.
type Scheduler struct {
	cfg        Config
	gate       WindowGate
	newAttempt func(slot models.SubmissionSlot) AttemptRunner
	audit      Recorder
	logger     logger.Logger

	// now and sleepUntil are injectable for drift tests.
	now        func() time.Time
	sleepUntil func(ctx context.Context, t time.Time) error

	iteration uint64
}

// New creates a scheduler. newAttempt is called once per eligible cycle with
// the slot the gate reported.
func New(cfg Config, g WindowGate, newAttempt func(slot models.SubmissionSlot) AttemptRunner,
	audit Recorder, log logger.Logger,
) (*Scheduler, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("scheduler: period must be greater than 0, got %v", cfg.Period)
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	s := &Scheduler{
		cfg:        cfg,
		gate:       g,
		newAttempt: newAttempt,
		audit:      audit,
		logger:     log,
		now:        time.Now,
	}
	s.sleepUntil = s.timerSleep
	return s, nil
}

// Run executes the cadence loop until the context is cancelled or the
// configured deadline passes. Both are clean terminations: Run returns nil
// and the process exits 0. The first cycle always waits for a full window
// boundary; a partial startup window is never submitted against.
func (s *Scheduler) Run(ctx context.Context) error {
	windowStart := s.now().UTC().Truncate(s.cfg.Period)
	next := windowStart.Add(s.cfg.Period)
	s.logger.InfoWith(logger.Sched, "Aligned to %v cadence, first cycle at %s",
		s.cfg.Period, next.Format(time.RFC3339))

	for {
		if s.stopDue() {
			s.logger.NoticeWith(logger.Sched, "Deadline reached after %d cycles, stopping", s.iteration)
			return nil
		}

		if err := s.sleepUntil(ctx, next); err != nil {
			s.logger.NoticeWith(logger.Sched, "Shutdown requested after %d cycles, stopping", s.iteration)
			return nil
		}

		if s.stopDue() {
			s.logger.NoticeWith(logger.Sched, "Deadline reached after %d cycles, stopping", s.iteration)
			return nil
		}

		s.iteration++
		started := s.now()
		s.runCycle(ctx)
		metrics.CycleDuration.Observe(s.now().Sub(started).Seconds())

		// Advance from the previous boundary, never from "now": absolute
		// boundaries keep wake times drift-free regardless of cycle cost.
		next = next.Add(s.cfg.Period)
	}
}

// runCycle performs gate -> attempt -> log for one window. A panic anywhere
// inside is recovered into a failed_terminal record; one bad cycle must never
// terminate the scheduler.
func (s *Scheduler) runCycle(ctx context.Context) {
	var record models.AttemptRecord

	func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.CyclePanics.Inc()
				s.logger.ErrorWith(logger.Sched, "Recovered panic in cycle %d: %v", s.iteration, r)
				record = models.AttemptRecord{
					Timestamp:     s.now().UTC(),
					ActorIdentity: s.cfg.Actor,
					OutcomeStatus: models.StatusFailedTerminal,
					FailureDetail: fmt.Sprintf("panic: %v", r),
				}
			}
		}()
		record = s.evaluateAndSubmit(ctx)
	}()

	metrics.CyclesTotal.WithLabelValues(string(record.OutcomeStatus)).Inc()
	if err := s.audit.Record(ctx, record); err != nil {
		metrics.AuditWriteErrors.Inc()
		s.logger.ErrorWith(logger.Audit, "Failed to write audit record for cycle %d: %v", s.iteration, err)
	}
}

// evaluateAndSubmit produces exactly one record for the cycle.
func (s *Scheduler) evaluateAndSubmit(ctx context.Context) models.AttemptRecord {
	result, err := s.gate.Evaluate(ctx)
	if err != nil {
		s.logger.ErrorWith(logger.Sched, "Gate returned hard error in cycle %d: %v", s.iteration, err)
		return models.AttemptRecord{
			Timestamp:     s.now().UTC(),
			ActorIdentity: s.cfg.Actor,
			OutcomeStatus: models.StatusFailedTerminal,
			FailureDetail: fmt.Sprintf("gate_error: %v", err),
		}
	}

	if !result.Eligible {
		for _, reason := range result.Reasons {
			metrics.GateSkips.WithLabelValues(reason).Inc()
		}
		record := models.AttemptRecord{
			Timestamp:     s.now().UTC(),
			ActorIdentity: s.cfg.Actor,
			OutcomeStatus: skipStatus(result.Reasons),
			FailureDetail: strings.Join(result.Reasons, ","),
		}
		if result.Slot != nil {
			record.SlotID = result.Slot.ID
		}
		return record
	}

	return s.newAttempt(*result.Slot).Run(ctx)
}

// skipStatus maps a non-eligible reason list to the audit status. A cycle is
// skipped_no_slot only when slot availability was the sole hard problem.
func skipStatus(reasons []string) models.OutcomeStatus {
	slotOnly := true
	sawSlotReason := false
	for _, reason := range reasons {
		switch reason {
		case gate.ReasonNoSlotAvailable, gate.ReasonAlreadySubmitted:
			sawSlotReason = true
		default:
			if !strings.HasPrefix(reason, "fallback:") {
				slotOnly = false
			}
		}
	}
	if sawSlotReason && slotOnly {
		return models.StatusSkippedNoSlot
	}
	return models.StatusSkippedNotEligible
}

// stopDue reports whether the configured deadline has passed.
func (s *Scheduler) stopDue() bool {
	return s.cfg.RunUntil != nil && !s.now().Before(*s.cfg.RunUntil)
}

// timerSleep blocks until t or context cancellation.
func (s *Scheduler) timerSleep(ctx context.Context, t time.Time) error {
	d := t.Sub(s.now())
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
