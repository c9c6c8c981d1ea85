// Package submitter drives a single submission attempt through a bounded
// state machine: Pending -> SlotConfirmed -> Signed -> Broadcast ->
// Confirmed or Rejected. An Attempt is constructed fresh per cycle and
// discarded after producing its audit record.
package submitter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forecasthq/forecast-submitter/pkg/endpoints"
	"github.com/forecasthq/forecast-submitter/pkg/logger"
	"github.com/forecasthq/forecast-submitter/pkg/metrics"
	"github.com/forecasthq/forecast-submitter/pkg/models"
)

// State is the attempt's position in the submission state machine.
type State int

const (
	StatePending State = iota
	StateSlotConfirmed
	StateSigned
	StateBroadcast
	StateConfirmed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSlotConfirmed:
		return "slot_confirmed"
	case StateSigned:
		return "signed"
	case StateBroadcast:
		return "broadcast"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// Payload is the unsigned submission body handed to the Signer. Signing must
// happen exactly once per cycle: re-predicting would change the payload
// semantics mid-attempt.
type Payload struct {
	TopicID     string  `json:"topic_id"`
	SlotID      string  `json:"slot_id"`
	Value       float64 `json:"value"`
	Actor       string  `json:"actor"`
	SubmittedAt string  `json:"submitted_at"`
}

// Config holds the per-attempt parameters.
type Config struct {
	TopicID              string
	Actor                string
	MaxBroadcastAttempts int
}

// Attempt is a single-use submission state machine.
type Attempt struct {
	cfg       Config
	slot      models.SubmissionSlot
	pool      *endpoints.Pool
	client    models.RemoteClient
	predictor models.Predictor
	signer    models.Signer
	logger    logger.Logger
	state     State
}

// New constructs an attempt for the given slot. The caller only constructs
// one when the gate reported the window open.
func New(cfg Config, slot models.SubmissionSlot, pool *endpoints.Pool, client models.RemoteClient,
	predictor models.Predictor, signer models.Signer, log logger.Logger,
) *Attempt {
	if cfg.MaxBroadcastAttempts <= 0 {
		cfg.MaxBroadcastAttempts = 3
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Attempt{
		cfg:       cfg,
		slot:      slot,
		pool:      pool,
		client:    client,
		predictor: predictor,
		signer:    signer,
		logger:    log,
		state:     StatePending,
	}
}

// State returns the attempt's current state.
func (a *Attempt) State() State {
	return a.state
}

// Run drives the attempt to a terminal state and returns its audit record.
// Run never returns an error; every outcome is classified into the record.
func (a *Attempt) Run(ctx context.Context) models.AttemptRecord {
	record := models.AttemptRecord{
		Timestamp:     time.Now().UTC(),
		SlotID:        a.slot.ID,
		ActorIdentity: a.cfg.Actor,
	}

	if !a.confirmSlot(ctx) {
		a.state = StateRejected
		record.OutcomeStatus = models.StatusFailedTerminal
		record.FailureDetail = "slot_expired"
		a.logger.NoticeWith(logger.Submit, "Slot %s expired between gate evaluation and attempt start", a.slot.ID)
		return record
	}
	a.state = StateSlotConfirmed

	signedTx, err := a.predictAndSign(ctx, &record)
	if err != nil {
		a.state = StateRejected
		record.OutcomeStatus = models.StatusFailedTerminal
		record.FailureDetail = fmt.Sprintf("predict_or_sign_failed: %v", err)
		a.logger.ErrorWith(logger.Submit, "Predict/sign failed for slot %s: %v", a.slot.ID, err)
		return record
	}
	a.state = StateSigned

	a.broadcast(ctx, signedTx, &record)
	return record
}

// confirmSlot re-validates that the slot targeted by the gate is still the
// current one, guarding against the window closing between gate evaluation
// and attempt start. A query failure does not abort the attempt: the
// broadcast itself is the authoritative staleness check.
func (a *Attempt) confirmSlot(ctx context.Context) bool {
	ep, err := a.pool.Select()
	if err != nil {
		return true
	}

	var current models.SubmissionSlot
	path := fmt.Sprintf("v1/topics/%s/slot?actor=%s", a.cfg.TopicID, a.cfg.Actor)
	if err := a.client.Query(ctx, ep.URL, path, &current); err != nil {
		a.pool.ReportFailure(ep, err.Error())
		a.logger.DebugWith(logger.Submit, "Slot re-validation query failed, proceeding: %v", err)
		return true
	}
	a.pool.ReportSuccess(ep)

	return current.ID == a.slot.ID && !current.Fulfilled
}

// predictAndSign obtains the prediction and signs the payload. Errors here
// are terminal for the cycle and never retried.
func (a *Attempt) predictAndSign(ctx context.Context, record *models.AttemptRecord) ([]byte, error) {
	value, err := a.predictor.Predict(ctx)
	if err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}
	record.PredictedValue = value
	metrics.PredictedValue.Set(value)

	payload, err := json.Marshal(Payload{
		TopicID:     a.cfg.TopicID,
		SlotID:      a.slot.ID,
		Value:       value,
		Actor:       a.cfg.Actor,
		SubmittedAt: record.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %v", err)
	}

	signedTx, err := a.signer.Sign(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("sign: %v", err)
	}
	return signedTx, nil
}

// broadcast sends the signed payload, retrying transport failures up to the
// configured ceiling. Each retry selects the next endpoint in pool order so a
// failing endpoint is never hammered twice in a row within one attempt.
func (a *Attempt) broadcast(ctx context.Context, signedTx []byte, record *models.AttemptRecord) {
	a.state = StateBroadcast

	var lastErr error
	for i := 0; i < a.cfg.MaxBroadcastAttempts; i++ {
		ep, err := a.pool.Select()
		if err != nil {
			lastErr = err
			break
		}
		record.EndpointUsed = ep.URL

		result, err := a.client.Broadcast(ctx, ep.URL, signedTx)
		if err != nil {
			// Transport failure: timeout, refused connection, HTML body.
			a.pool.ReportFailure(ep, err.Error())
			metrics.BroadcastAttempts.WithLabelValues("transport_error").Inc()
			a.logger.ErrorWith(logger.Submit, "Broadcast attempt %d/%d via %s failed: %v",
				i+1, a.cfg.MaxBroadcastAttempts, ep.Name, err)
			lastErr = err
			continue
		}
		a.pool.ReportSuccess(ep)

		if result.Code == codeOK {
			a.state = StateConfirmed
			record.OutcomeStatus = models.StatusSuccess
			record.TxHash = result.TxHash
			metrics.BroadcastAttempts.WithLabelValues("accepted").Inc()
			a.logger.InfoWith(logger.Submit, "Submission accepted for slot %s: %s", a.slot.ID, result.TxHash)
			a.confirmOnChain(ctx, record)
			return
		}

		if IsTerminalRejection(result.Code, result.RawLog) {
			a.state = StateRejected
			record.OutcomeStatus = models.StatusFailedTerminal
			record.FailureDetail = fmt.Sprintf("rejected (code %d, %s): %s",
				result.Code, RejectionReason(result.Code, result.RawLog), result.RawLog)
			metrics.BroadcastAttempts.WithLabelValues("terminal_rejection").Inc()
			a.logger.NoticeWith(logger.Submit, "Terminal rejection for slot %s: code %d, %s",
				a.slot.ID, result.Code, result.RawLog)
			return
		}

		// Transient rejection (mempool full and similar): retry elsewhere.
		metrics.BroadcastAttempts.WithLabelValues("transient_rejection").Inc()
		a.logger.NoticeWith(logger.Submit, "Transient rejection via %s (code %d): %s",
			ep.Name, result.Code, result.RawLog)
		lastErr = fmt.Errorf("transient rejection (code %d): %s", result.Code, result.RawLog)
	}

	a.state = StateRejected
	record.OutcomeStatus = models.StatusFailedRetryable
	record.FailureDetail = fmt.Sprintf("broadcast retries exhausted after %d attempts: %v",
		a.cfg.MaxBroadcastAttempts, lastErr)
	a.logger.ErrorWith(logger.Submit, "Broadcast retries exhausted for slot %s: %v", a.slot.ID, lastErr)
}

// confirmOnChain performs one best-effort confirmation query. Confirmation
// failure annotates the record but never downgrades an accepted broadcast.
func (a *Attempt) confirmOnChain(ctx context.Context, record *models.AttemptRecord) {
	ep, err := a.pool.Select()
	if err != nil {
		record.FailureDetail = fmt.Sprintf("confirmation_unverified: %v", err)
		return
	}

	var confirm models.ConfirmResult
	if err := a.client.Query(ctx, ep.URL, "v1/tx/"+record.TxHash, &confirm); err != nil {
		a.pool.ReportFailure(ep, err.Error())
		record.FailureDetail = fmt.Sprintf("confirmation_unverified: %v", err)
		a.logger.DebugWith(logger.Submit, "Confirmation query for %s failed: %v", record.TxHash, err)
		return
	}
	a.pool.ReportSuccess(ep)

	if confirm.Code != codeOK {
		record.FailureDetail = fmt.Sprintf("confirmation_reported_code_%d", confirm.Code)
		a.logger.NoticeWith(logger.Submit, "Tx %s confirmed with nonzero code %d", record.TxHash, confirm.Code)
		return
	}
	a.logger.InfoWith(logger.Submit, "Tx %s confirmed at height %d", record.TxHash, confirm.Height)
}
