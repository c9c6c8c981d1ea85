// Package gate decides whether the current cadence window permits a
// submission. Ordinary remote flakiness never surfaces as an error here; it
// only shows up as a non-eligible result with reasons the audit log records.
package gate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/forecasthq/forecast-submitter/pkg/chainrpc"
	"github.com/forecasthq/forecast-submitter/pkg/endpoints"
	"github.com/forecasthq/forecast-submitter/pkg/logger"
	"github.com/forecasthq/forecast-submitter/pkg/metrics"
	"github.com/forecasthq/forecast-submitter/pkg/models"
)

// Reason strings recorded in the audit trail. Fallback substitutions carry
// the "fallback:" prefix so degraded-mode decisions stay auditable.
const (
	ReasonLifecycleQueryFailed = "lifecycle_query_failed"
	ReasonSlotQueryFailed      = "slot_query_failed"
	ReasonNotActive            = "not_active"
	ReasonNotRewardable        = "not_rewardable"
	ReasonNoSlotAvailable      = "no_slot_available"
	ReasonAlreadySubmitted     = "already_submitted_this_window"
	ReasonStakeBelowMinimum    = "stake_below_minimum"
	ReasonStakeUnavailable     = "stake_data_unavailable"

	FallbackRewardableUnknown = "fallback:rewardable_unknown_assumed_true"
	FallbackStakeUnknown      = "fallback:stake_unknown_assumed_sufficient"
)

// Config holds the gate's evaluation parameters.
type Config struct {
	TopicID string
	Actor   string
	// MinStake is the minimum total stake required on the topic; nil or zero
	// disables the check.
	MinStake *big.Int
	// PermissiveFallback substitutes permissive defaults when auxiliary data
	// endpoints are unavailable instead of blocking submissions.
	PermissiveFallback bool
}

// Gate evaluates submission eligibility against the remote network state.
type Gate struct {
	cfg    Config
	pool   *endpoints.Pool
	client models.RemoteClient
	logger logger.Logger
}

// New creates a gate. TopicID and Actor must be set; that is validated at
// config load time, so New only guards against programming errors.
func New(cfg Config, pool *endpoints.Pool, client models.RemoteClient, log logger.Logger) (*Gate, error) {
	if cfg.TopicID == "" {
		return nil, fmt.Errorf("gate: topic ID is required")
	}
	if cfg.Actor == "" {
		return nil, fmt.Errorf("gate: actor identity is required")
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Gate{cfg: cfg, pool: pool, client: client, logger: log}, nil
}

// Evaluate queries the topic lifecycle state and the open submission slot and
// returns whether submission is currently permitted. Every failing condition
// is appended to Reasons; the check never short-circuits so the audit record
// carries the full cause list.
func (g *Gate) Evaluate(ctx context.Context) (models.GateResult, error) {
	result := models.GateResult{}

	var state models.TopicState
	if err := g.queryWithFailover(ctx, "v1/topics/"+g.cfg.TopicID, &state); err != nil {
		g.logger.ErrorWith(logger.Gate, "Lifecycle query failed on all attempts: %v", err)
		result.Reasons = append(result.Reasons, ReasonLifecycleQueryFailed)
		return result, nil
	}

	var slot models.SubmissionSlot
	slotPath := fmt.Sprintf("v1/topics/%s/slot?actor=%s", g.cfg.TopicID, g.cfg.Actor)
	slotErr := g.queryWithFailover(ctx, slotPath, &slot)

	if !state.Active {
		result.Reasons = append(result.Reasons, ReasonNotActive)
	}

	switch {
	case state.Rewardable == nil && g.cfg.PermissiveFallback:
		// Endpoint did not report rewardability; assume it rather than stall.
		result.Reasons = append(result.Reasons, FallbackRewardableUnknown)
		result.Degraded = true
	case state.Rewardable == nil:
		result.Reasons = append(result.Reasons, ReasonNotRewardable)
	case !*state.Rewardable:
		result.Reasons = append(result.Reasons, ReasonNotRewardable)
	}

	switch {
	case slotErr != nil:
		g.logger.ErrorWith(logger.Gate, "Slot query failed on all attempts: %v", slotErr)
		result.Reasons = append(result.Reasons, ReasonSlotQueryFailed)
	case slot.ID == "":
		result.Reasons = append(result.Reasons, ReasonNoSlotAvailable)
	case slot.Fulfilled:
		result.Slot = &slot
		result.Reasons = append(result.Reasons, ReasonAlreadySubmitted)
	default:
		result.Slot = &slot
	}

	g.checkStake(ctx, &result)

	result.Eligible = true
	for _, reason := range result.Reasons {
		if !isFallbackReason(reason) {
			result.Eligible = false
		}
	}
	if result.Eligible && result.Slot == nil {
		result.Eligible = false
	}

	if result.Degraded {
		metrics.DegradedDecisions.Inc()
	}
	if result.Eligible {
		g.logger.InfoWith(logger.Gate, "Window open for topic %s, slot %s", g.cfg.TopicID, result.Slot.ID)
	} else {
		g.logger.InfoWith(logger.Gate, "Window closed for topic %s: %v", g.cfg.TopicID, result.Reasons)
	}
	return result, nil
}

// checkStake enforces the minimum stake threshold when configured. Stake data
// is auxiliary: when the endpoints cannot serve it and permissive fallback is
// enabled, the gate substitutes "sufficient" and tags the decision.
func (g *Gate) checkStake(ctx context.Context, result *models.GateResult) {
	if g.cfg.MinStake == nil || g.cfg.MinStake.Sign() <= 0 {
		return
	}

	var stake models.StakeInfo
	err := g.queryWithFailover(ctx, "v1/topics/"+g.cfg.TopicID+"/stake", &stake)
	if err != nil {
		if chainrpc.IsUnavailable(err) {
			g.logger.NoticeWith(logger.Gate, "Stake data not served by configured endpoints: %v", err)
		} else {
			g.logger.ErrorWith(logger.Gate, "Stake query failed on all attempts: %v", err)
		}
		if g.cfg.PermissiveFallback {
			result.Reasons = append(result.Reasons, FallbackStakeUnknown)
			result.Degraded = true
			return
		}
		result.Reasons = append(result.Reasons, ReasonStakeUnavailable)
		return
	}

	total, ok := new(big.Int).SetString(stake.TotalStake, 10)
	if !ok {
		g.logger.ErrorWith(logger.Gate, "Unparseable total stake %q for topic %s", stake.TotalStake, g.cfg.TopicID)
		result.Reasons = append(result.Reasons, ReasonStakeUnavailable)
		return
	}
	if total.Cmp(g.cfg.MinStake) < 0 {
		result.Reasons = append(result.Reasons, ReasonStakeBelowMinimum)
	}
}

// queryWithFailover runs a query through the endpoint pool, reporting the
// outcome of every call, and retries once against the next endpoint.
func (g *Gate) queryWithFailover(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ep, err := g.pool.Select()
		if err != nil {
			return err
		}
		if err := g.client.Query(ctx, ep.URL, path, out); err != nil {
			g.pool.ReportFailure(ep, err.Error())
			lastErr = err
			continue
		}
		g.pool.ReportSuccess(ep)
		return nil
	}
	return lastErr
}

func isFallbackReason(reason string) bool {
	return len(reason) >= 9 && reason[:9] == "fallback:"
}
