package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecasthq/forecast-submitter/pkg/gate"
	"github.com/forecasthq/forecast-submitter/pkg/models"
)

type gateFunc func(ctx context.Context) (models.GateResult, error)

func (f gateFunc) Evaluate(ctx context.Context) (models.GateResult, error) { return f(ctx) }

type attemptFunc func(ctx context.Context) models.AttemptRecord

func (f attemptFunc) Run(ctx context.Context) models.AttemptRecord { return f(ctx) }

type captureRecorder struct {
	records []models.AttemptRecord
	err     error
}

func (c *captureRecorder) Record(_ context.Context, rec models.AttemptRecord) error {
	c.records = append(c.records, rec)
	return c.err
}

// testHarness wires a scheduler to a fake clock. sleepUntil moves the clock
// to the boundary and stops the loop after maxSleeps wakes.
type testHarness struct {
	sched     *Scheduler
	recorder  *captureRecorder
	wakes     []time.Time
	now       time.Time
	cycleCost time.Duration
}

func newHarness(t *testing.T, cfg Config, g WindowGate, newAttempt func(models.SubmissionSlot) AttemptRunner, maxSleeps int) *testHarness {
	t.Helper()
	h := &testHarness{recorder: &captureRecorder{}}

	sched, err := New(cfg, g, newAttempt, h.recorder, nil)
	require.NoError(t, err)
	h.sched = sched

	sched.now = func() time.Time { return h.now }
	sched.sleepUntil = func(_ context.Context, boundary time.Time) error {
		if len(h.wakes) >= maxSleeps {
			return context.Canceled
		}
		h.wakes = append(h.wakes, boundary)
		// Wake exactly at the boundary, then burn some processing time so
		// drift would show up if boundaries were computed relatively.
		h.now = boundary.Add(h.cycleCost)
		return nil
	}
	return h
}

func skipGate() WindowGate {
	return gateFunc(func(context.Context) (models.GateResult, error) {
		return models.GateResult{Eligible: false, Reasons: []string{gate.ReasonNoSlotAvailable}}, nil
	})
}

func noAttempt(t *testing.T) func(models.SubmissionSlot) AttemptRunner {
	return func(models.SubmissionSlot) AttemptRunner {
		t.Fatal("attempt constructed for a non-eligible cycle")
		return nil
	}
}

func TestRunWakesAtAlignedBoundariesWithoutDrift(t *testing.T) {
	cfg := Config{Period: time.Hour, Actor: "0xactor"}
	h := newHarness(t, cfg, skipGate(), noAttempt(t), 4)
	h.now = time.Date(2026, 3, 1, 10, 17, 23, 0, time.UTC)
	h.cycleCost = 5 * time.Minute

	err := h.sched.Run(context.Background())
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.Len(t, h.wakes, 4)
	for i, wake := range h.wakes {
		assert.Equal(t, base.Add(time.Duration(i+1)*time.Hour), wake,
			"wake %d must be an absolute boundary, independent of cycle cost", i)
	}
}

func TestExactlyOneRecordPerCycle(t *testing.T) {
	cfg := Config{Period: time.Hour, Actor: "0xactor"}
	h := newHarness(t, cfg, skipGate(), noAttempt(t), 3)
	h.now = time.Unix(0, 0).UTC()

	err := h.sched.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.recorder.records, 3)
	for _, rec := range h.recorder.records {
		assert.Equal(t, models.StatusSkippedNoSlot, rec.OutcomeStatus)
		assert.Equal(t, gate.ReasonNoSlotAvailable, rec.FailureDetail)
		assert.Equal(t, "0xactor", rec.ActorIdentity)
	}
}

func TestEligibleCycleRunsAttempt(t *testing.T) {
	slot := models.SubmissionSlot{ID: "42"}
	eligible := gateFunc(func(context.Context) (models.GateResult, error) {
		return models.GateResult{Eligible: true, Slot: &slot}, nil
	})

	var gotSlot models.SubmissionSlot
	newAttempt := func(s models.SubmissionSlot) AttemptRunner {
		gotSlot = s
		return attemptFunc(func(context.Context) models.AttemptRecord {
			return models.AttemptRecord{SlotID: s.ID, OutcomeStatus: models.StatusSuccess, TxHash: "0xok"}
		})
	}

	cfg := Config{Period: time.Hour, Actor: "0xactor"}
	h := newHarness(t, cfg, eligible, newAttempt, 1)
	h.now = time.Unix(0, 0).UTC()

	err := h.sched.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "42", gotSlot.ID)
	require.Len(t, h.recorder.records, 1)
	assert.Equal(t, models.StatusSuccess, h.recorder.records[0].OutcomeStatus)
}

func TestDeadlineInPastRunsZeroCycles(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 17, 0, 0, time.UTC)
	deadline := now.Add(-time.Second)

	cfg := Config{Period: time.Hour, RunUntil: &deadline, Actor: "0xactor"}
	h := newHarness(t, cfg, skipGate(), noAttempt(t), 10)
	h.now = now

	err := h.sched.Run(context.Background())
	require.NoError(t, err, "a past deadline is a clean stop, not an error")
	assert.Empty(t, h.wakes)
	assert.Empty(t, h.recorder.records)
}

func TestDeadlineCheckedAfterWake(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 17, 0, 0, time.UTC)
	deadline := now.Add(30 * time.Minute) // before the first boundary

	cfg := Config{Period: time.Hour, RunUntil: &deadline, Actor: "0xactor"}
	h := newHarness(t, cfg, skipGate(), noAttempt(t), 10)
	h.now = now

	err := h.sched.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.wakes, 1)
	assert.Empty(t, h.recorder.records, "no cycle may run past the deadline")
}

func TestPanicInCycleIsRecoveredAndRecorded(t *testing.T) {
	calls := 0
	panicky := gateFunc(func(context.Context) (models.GateResult, error) {
		calls++
		if calls == 1 {
			panic("lifecycle decode exploded")
		}
		return models.GateResult{Eligible: false, Reasons: []string{gate.ReasonNotActive}}, nil
	})

	cfg := Config{Period: time.Hour, Actor: "0xactor"}
	h := newHarness(t, cfg, panicky, noAttempt(t), 2)
	h.now = time.Unix(0, 0).UTC()

	err := h.sched.Run(context.Background())
	require.NoError(t, err, "a panicking cycle must not terminate the scheduler")

	require.Len(t, h.recorder.records, 2)
	assert.Equal(t, models.StatusFailedTerminal, h.recorder.records[0].OutcomeStatus)
	assert.Contains(t, h.recorder.records[0].FailureDetail, "panic")
	assert.Contains(t, h.recorder.records[0].FailureDetail, "lifecycle decode exploded")
	assert.Equal(t, models.StatusSkippedNotEligible, h.recorder.records[1].OutcomeStatus)
}

func TestGateHardErrorIsRecorded(t *testing.T) {
	broken := gateFunc(func(context.Context) (models.GateResult, error) {
		return models.GateResult{}, errors.New("malformed endpoint list")
	})

	cfg := Config{Period: time.Hour, Actor: "0xactor"}
	h := newHarness(t, cfg, broken, noAttempt(t), 1)
	h.now = time.Unix(0, 0).UTC()

	err := h.sched.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.recorder.records, 1)
	assert.Equal(t, models.StatusFailedTerminal, h.recorder.records[0].OutcomeStatus)
	assert.Contains(t, h.recorder.records[0].FailureDetail, "gate_error")
}

func TestAuditWriteFailureDoesNotStopLoop(t *testing.T) {
	cfg := Config{Period: time.Hour, Actor: "0xactor"}
	h := newHarness(t, cfg, skipGate(), noAttempt(t), 3)
	h.now = time.Unix(0, 0).UTC()
	h.recorder.err = errors.New("disk full")

	err := h.sched.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.recorder.records, 3, "losing audit rows must not stop future cycles")
}

func TestNewRejectsInvalidPeriod(t *testing.T) {
	_, err := New(Config{Period: 0}, skipGate(), nil, &captureRecorder{}, nil)
	assert.Error(t, err)
}

func TestSkipStatusMapping(t *testing.T) {
	assert.Equal(t, models.StatusSkippedNoSlot,
		skipStatus([]string{gate.ReasonNoSlotAvailable}))
	assert.Equal(t, models.StatusSkippedNoSlot,
		skipStatus([]string{gate.ReasonAlreadySubmitted}))
	assert.Equal(t, models.StatusSkippedNoSlot,
		skipStatus([]string{gate.ReasonAlreadySubmitted, gate.FallbackStakeUnknown}))
	assert.Equal(t, models.StatusSkippedNotEligible,
		skipStatus([]string{gate.ReasonNotActive}))
	assert.Equal(t, models.StatusSkippedNotEligible,
		skipStatus([]string{gate.ReasonNotActive, gate.ReasonNoSlotAvailable}))
	assert.Equal(t, models.StatusSkippedNotEligible,
		skipStatus([]string{gate.ReasonLifecycleQueryFailed}))
}
