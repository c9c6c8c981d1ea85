package models

import (
	"context"
	"time"
)

// OutcomeStatus classifies the terminal outcome of one scheduler cycle.
type OutcomeStatus string

const (
	// StatusSuccess means the submission was broadcast and accepted.
	StatusSuccess OutcomeStatus = "success"
	// StatusSkippedNoSlot means no submission slot was open, or the open slot
	// was already fulfilled by this actor.
	StatusSkippedNoSlot OutcomeStatus = "skipped_no_slot"
	// StatusSkippedNotEligible means the gate rejected the cycle for a
	// non-slot reason (topic inactive, stake below minimum, query failure).
	StatusSkippedNotEligible OutcomeStatus = "skipped_not_eligible"
	// StatusFailedRetryable means broadcast retries were exhausted on
	// transport errors; the next cycle may succeed.
	StatusFailedRetryable OutcomeStatus = "failed_retryable"
	// StatusFailedTerminal means the remote system explicitly rejected the
	// submission, or a non-recoverable local error occurred.
	StatusFailedTerminal OutcomeStatus = "failed_terminal"
)

// SubmissionSlot is the remote-side unit of work the submitter must target.
// A slot must never be targeted twice by the same actor.
type SubmissionSlot struct {
	ID        string `json:"slot_id"`
	Fulfilled bool   `json:"fulfilled"` // already fulfilled by this actor
}

// TopicState is the remote lifecycle state of the topic being submitted to.
// Rewardable is a pointer so the gate can distinguish "not rewardable" from
// "the endpoint did not report rewardability".
type TopicState struct {
	Active     bool  `json:"active"`
	Rewardable *bool `json:"rewardable"`
}

// StakeInfo carries the auxiliary stake/reputer data used for threshold checks.
type StakeInfo struct {
	TotalStake   string `json:"total_stake"`
	ReputerCount int    `json:"reputer_count"`
}

// GateResult is the outcome of a window gate evaluation.
type GateResult struct {
	Eligible bool
	Reasons  []string
	Slot     *SubmissionSlot
	Degraded bool // at least one permissive fallback was substituted
}

// BroadcastResult is the parsed response of a transaction broadcast.
// Code 0 means accepted; any other code is an explicit remote rejection.
type BroadcastResult struct {
	TxHash string `json:"tx_hash"`
	Code   uint32 `json:"code"`
	RawLog string `json:"raw_log"`
}

// ConfirmResult is the parsed response of a transaction status query.
type ConfirmResult struct {
	Height int64  `json:"height"`
	Code   uint32 `json:"code"`
}

// AttemptRecord is one row of the audit trail. Exactly one record is written
// per scheduler cycle that reaches the gate decision point.
type AttemptRecord struct {
	Timestamp      time.Time
	SlotID         string
	PredictedValue float64
	ActorIdentity  string
	EndpointUsed   string
	TxHash         string
	OutcomeStatus  OutcomeStatus
	FailureDetail  string
}

// Predictor produces the value to submit. Model training and feature
// engineering live behind this interface.
type Predictor interface {
	Predict(ctx context.Context) (float64, error)
}

// Signer signs a submission payload into a broadcastable transaction.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
	Address() string
}

// RemoteClient is the transport abstraction for all endpoint-pool-driven
// remote calls. Implementations must treat malformed or non-JSON responses
// as transport errors so the caller can retry against another endpoint.
type RemoteClient interface {
	Query(ctx context.Context, endpointURL, path string, out interface{}) error
	Broadcast(ctx context.Context, endpointURL string, signedTx []byte) (BroadcastResult, error)
}
