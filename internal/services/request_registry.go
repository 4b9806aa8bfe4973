package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"settlement-backend/internal/events"
	"settlement-backend/internal/ledger"
	"settlement-backend/internal/metrics"
	"settlement-backend/internal/models"
	"settlement-backend/internal/repository"
	"settlement-backend/internal/utils"
)

const (
	MinRequestTimeout = 5 * time.Minute
	MaxRequestTimeout = 24 * time.Hour

	RefundReasonOracleFailure = "oracle failure"
	RefundReasonSlippage      = "slippage"
	RefundReasonTimeout       = "timeout"
	RefundReasonAdminExpire   = "admin expire"
)

// RequestRegistry manages the settlement requests of one listed asset: it
// escrows funds at creation, settles oracle results exactly once and
// refunds the escrowed amount on every non-success outcome.
//
// The registry owns no public lock; the coordinator serializes all calls
// except OnFulfill, which is guarded by the repository's optimistic
// terminal transition.
type RequestRegistry struct {
	asset        models.Asset
	requests     repository.RequestRepository
	book         *ledger.Ledger
	dispatcher   *AssetDispatcher
	publisher    events.Publisher
	logic        *LogicHandle
	baseCurrency string

	mu              sync.Mutex
	timeout         time.Duration
	maxCleanupBatch int

	now func() time.Time
}

type RequestRegistryParams struct {
	Asset           models.Asset
	Requests        repository.RequestRepository
	Ledger          *ledger.Ledger
	Dispatcher      *AssetDispatcher
	Publisher       events.Publisher
	Logic           *LogicHandle
	BaseCurrency    string
	Timeout         time.Duration
	MaxCleanupBatch int
	Now             func() time.Time
}

func NewRequestRegistry(p RequestRegistryParams) *RequestRegistry {
	if p.Now == nil {
		p.Now = time.Now
	}
	return &RequestRegistry{
		asset:           p.Asset,
		requests:        p.Requests,
		book:            p.Ledger,
		dispatcher:      p.Dispatcher,
		publisher:       p.Publisher,
		logic:           p.Logic,
		baseCurrency:    p.BaseCurrency,
		timeout:         p.Timeout,
		maxCleanupBatch: p.MaxCleanupBatch,
		now:             p.Now,
	}
}

func (r *RequestRegistry) Ticker() string { return r.asset.Ticker }

func (r *RequestRegistry) Asset() models.Asset { return r.asset }

// CreateMintRequest escrows base currency from the requester, dispatches a
// buy order to the oracle and records the pending request. A dispatch
// failure rolls the escrow back so funds are never stranded.
func (r *RequestRegistry) CreateMintRequest(ctx context.Context, amount *big.Int, requester, externalAccountID string, expectedOutput *big.Int) (string, error) {
	return r.createRequest(ctx, models.DirectionMint, amount, requester, externalAccountID, expectedOutput)
}

// CreateRedeemRequest escrows asset tokens from the requester, dispatches a
// sell order to the oracle and records the pending request.
func (r *RequestRegistry) CreateRedeemRequest(ctx context.Context, amount *big.Int, requester, externalAccountID string, expectedOutput *big.Int) (string, error) {
	return r.createRequest(ctx, models.DirectionRedeem, amount, requester, externalAccountID, expectedOutput)
}

func (r *RequestRegistry) createRequest(ctx context.Context, direction models.Direction, amount *big.Int, requester, externalAccountID string, expectedOutput *big.Int) (string, error) {
	currency := r.baseCurrency
	if direction == models.DirectionRedeem {
		currency = r.asset.Ticker
	}
	escrow := ledger.EscrowAccount(r.asset.Ticker)

	if err := r.book.Transfer(requester, escrow, currency, amount); err != nil {
		return "", fmt.Errorf("escrow transfer failed: %w", err)
	}

	requestID, err := r.dispatcher.Dispatch(ctx, r, direction, utils.FormatAmount(amount), externalAccountID)
	if err != nil {
		// roll the escrow back so the failed dispatch leaves no trace
		if rbErr := r.book.Transfer(escrow, requester, currency, amount); rbErr != nil {
			logrus.WithFields(logrus.Fields{
				"ticker":    r.asset.Ticker,
				"requester": requester,
			}).WithError(rbErr).Error("escrow rollback failed after dispatch error")
		}
		metrics.OracleDispatchFailures.WithLabelValues(r.asset.Ticker).Inc()
		return "", fmt.Errorf("oracle dispatch failed: %w", err)
	}

	now := r.now()
	req := &models.Request{
		ID:                requestID,
		AssetID:           r.asset.ID,
		Ticker:            r.asset.Ticker,
		Direction:         direction,
		Status:            models.RequestStatusPending,
		Amount:            utils.FormatAmount(amount),
		Requester:         requester,
		ExternalAccountID: externalAccountID,
		CreatedAt:         now,
		Deadline:          now.Add(r.Timeout()),
		UpdatedAt:         now,
	}
	if expectedOutput != nil && expectedOutput.Sign() > 0 {
		req.AmountExpected = utils.FormatAmount(expectedOutput)
	}
	if err := r.requests.Create(ctx, req); err != nil {
		// undo both the escrow and the dispatch routing entry
		if rbErr := r.book.Transfer(escrow, requester, currency, amount); rbErr != nil {
			logrus.WithError(rbErr).Error("escrow rollback failed after persist error")
		}
		r.dispatcher.Forget(requestID)
		return "", fmt.Errorf("failed to persist request: %w", err)
	}

	eventName := events.EventAssetMinted
	if direction == models.DirectionRedeem {
		eventName = events.EventAssetRedeemed
	}
	r.publish(events.SettlementEvent{
		Event:     eventName,
		Ticker:    r.asset.Ticker,
		RequestID: requestID,
		Requester: requester,
		Direction: string(direction),
		Amount:    req.Amount,
	})
	metrics.RequestsCreated.WithLabelValues(r.asset.Ticker, string(direction)).Inc()
	r.updateEscrowGauge(currency)

	logrus.WithFields(logrus.Fields{
		"ticker":     r.asset.Ticker,
		"request_id": requestID,
		"direction":  direction,
		"amount":     req.Amount,
		"requester":  requester,
	}).Info("settlement request created")
	return requestID, nil
}

// OnFulfill settles an oracle result. Exactly one call per request wins the
// terminal transition; every other call fails with
// ErrRequestAlreadyProcessed. A callback at or after the deadline fails
// with ErrRequestExpired and leaves the request pending for cleanup.
//
// The terminal status is persisted before any funds move.
func (r *RequestRegistry) OnFulfill(ctx context.Context, requestID string, resultAmount *big.Int, success bool) error {
	req, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		if err == repository.ErrNotFound {
			return ErrRequestNotFound
		}
		return err
	}
	if req.Status.Terminal() {
		return ErrRequestAlreadyProcessed
	}
	if !req.Deadline.After(r.now()) {
		return ErrRequestExpired
	}

	if !success || resultAmount == nil || resultAmount.Sign() == 0 {
		return r.settleRefund(ctx, req, RefundReasonOracleFailure)
	}

	if reason := r.checkSlippage(req, resultAmount); reason != "" {
		return r.settleRefund(ctx, req, reason)
	}

	won, err := r.requests.MarkTerminal(ctx, requestID, models.RequestStatusFulfilled, utils.FormatAmount(resultAmount), "")
	if err != nil {
		return fmt.Errorf("failed to mark request fulfilled: %w", err)
	}
	if !won {
		return ErrRequestAlreadyProcessed
	}

	if err := r.payOut(req, resultAmount); err != nil {
		// status already terminal; funds reconciliation is an operator action
		logrus.WithFields(logrus.Fields{
			"ticker":     r.asset.Ticker,
			"request_id": requestID,
		}).WithError(err).Error("payout failed after terminal transition")
		return err
	}

	r.publish(events.SettlementEvent{
		Event:     events.EventRequestSuccess,
		Ticker:    r.asset.Ticker,
		RequestID: requestID,
		Requester: req.Requester,
		Direction: string(req.Direction),
		Amount:    utils.FormatAmount(resultAmount),
	})
	metrics.RequestsFulfilled.WithLabelValues(r.asset.Ticker, string(req.Direction)).Inc()
	r.updateEscrowGauge(req.EscrowCurrency(r.baseCurrency))

	logrus.WithFields(logrus.Fields{
		"ticker":     r.asset.Ticker,
		"request_id": requestID,
		"result":     utils.FormatAmount(resultAmount),
	}).Info("settlement request fulfilled")
	return nil
}

// checkSlippage returns a refund reason when the result falls outside the
// configured window around the quoted output, or "" when acceptable.
func (r *RequestRegistry) checkSlippage(req *models.Request, resultAmount *big.Int) string {
	if req.AmountExpected == "" {
		return ""
	}
	logic := r.logic.Current()
	if logic.SlippageMinBP == 0 && logic.SlippageMaxBP == 0 {
		return ""
	}
	expected, err := utils.ParseAmount(req.AmountExpected)
	if err != nil {
		return ""
	}
	low, high := utils.SlippageBounds(expected, logic.SlippageMinBP, logic.SlippageMaxBP)
	if !utils.WithinBounds(resultAmount, low, high) {
		return RefundReasonSlippage
	}
	return ""
}

// settleRefund moves the request to Error and returns the escrowed funds.
// The transition happens first; losing it means another settlement won.
func (r *RequestRegistry) settleRefund(ctx context.Context, req *models.Request, reason string) error {
	won, err := r.requests.MarkTerminal(ctx, req.ID, models.RequestStatusError, "", reason)
	if err != nil {
		return fmt.Errorf("failed to mark request errored: %w", err)
	}
	if !won {
		return ErrRequestAlreadyProcessed
	}
	r.refund(req, reason)
	return nil
}

// refund returns the originally escrowed currency and amount. Callers must
// have already won the terminal transition.
func (r *RequestRegistry) refund(req *models.Request, reason string) {
	currency := req.EscrowCurrency(r.baseCurrency)
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		logrus.WithField("request_id", req.ID).WithError(err).Error("stored amount unparseable, refund skipped")
		return
	}
	if err := r.book.Transfer(ledger.EscrowAccount(r.asset.Ticker), req.Requester, currency, amount); err != nil {
		logrus.WithFields(logrus.Fields{
			"ticker":     r.asset.Ticker,
			"request_id": req.ID,
		}).WithError(err).Error("refund transfer failed")
		return
	}
	r.publish(events.SettlementEvent{
		Event:     events.EventRefundIssued,
		Ticker:    r.asset.Ticker,
		RequestID: req.ID,
		Requester: req.Requester,
		Direction: string(req.Direction),
		Amount:    req.Amount,
		Reason:    reason,
	})
	metrics.RequestsRefunded.WithLabelValues(r.asset.Ticker, reason).Inc()
	r.updateEscrowGauge(currency)

	logrus.WithFields(logrus.Fields{
		"ticker":     r.asset.Ticker,
		"request_id": req.ID,
		"reason":     reason,
		"amount":     req.Amount,
	}).Info("refund issued")
}

// payOut executes the fulfilled side of the settlement: a mint retires the
// escrowed base currency to the treasury and issues asset tokens, a redeem
// burns the escrowed tokens and pays base currency from the treasury.
func (r *RequestRegistry) payOut(req *models.Request, resultAmount *big.Int) error {
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		return fmt.Errorf("stored amount unparseable: %w", err)
	}
	escrow := ledger.EscrowAccount(r.asset.Ticker)
	switch req.Direction {
	case models.DirectionMint:
		if err := r.book.Transfer(escrow, ledger.TreasuryAccount, r.baseCurrency, amount); err != nil {
			return err
		}
		return r.book.Mint(req.Requester, r.asset.Ticker, resultAmount)
	case models.DirectionRedeem:
		if err := r.book.Burn(escrow, r.asset.Ticker, amount); err != nil {
			return err
		}
		return r.book.Transfer(ledger.TreasuryAccount, req.Requester, r.baseCurrency, resultAmount)
	default:
		return fmt.Errorf("unknown direction %q", req.Direction)
	}
}

// CleanupExpired expires the given pending requests whose deadline has
// passed, refunding each. Requests that are unknown, belong to another
// asset, are already terminal or are not yet due are skipped silently.
func (r *RequestRegistry) CleanupExpired(ctx context.Context, ids []string) (int, error) {
	return r.expireBatch(ctx, ids, false)
}

// AdminExpire expires the given pending requests regardless of deadline.
func (r *RequestRegistry) AdminExpire(ctx context.Context, ids []string) (int, error) {
	return r.expireBatch(ctx, ids, true)
}

// expiredPending filters ids down to this asset's pending requests whose
// deadline has passed.
func (r *RequestRegistry) expiredPending(ctx context.Context, ids []string) []string {
	now := r.now()
	var due []string
	for _, id := range ids {
		req, err := r.requests.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if req.Ticker != r.asset.Ticker || req.Status != models.RequestStatusPending {
			continue
		}
		if req.Deadline.After(now) {
			continue
		}
		due = append(due, id)
	}
	return due
}

func (r *RequestRegistry) expireBatch(ctx context.Context, ids []string, force bool) (int, error) {
	if len(ids) > r.MaxCleanupBatch() {
		return 0, ErrInvalidBatchSize
	}
	reason := RefundReasonTimeout
	if force {
		reason = RefundReasonAdminExpire
	}
	expired := 0
	for _, id := range ids {
		req, err := r.requests.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if req.Ticker != r.asset.Ticker || req.Status != models.RequestStatusPending {
			continue
		}
		if !force && req.Deadline.After(r.now()) {
			continue
		}
		won, err := r.requests.MarkTerminal(ctx, id, models.RequestStatusExpired, "", reason)
		if err != nil || !won {
			continue
		}
		r.refund(req, reason)
		r.publish(events.SettlementEvent{
			Event:     events.EventRequestExpired,
			Ticker:    r.asset.Ticker,
			RequestID: id,
			Requester: req.Requester,
			Reason:    reason,
		})
		metrics.RequestsExpired.WithLabelValues(r.asset.Ticker).Inc()
		expired++
	}
	return expired, nil
}

// SweepExpired expires one batch of overdue pending requests found by the
// repository. Driven by the background cleanup service.
func (r *RequestRegistry) SweepExpired(ctx context.Context) (int, error) {
	reqs, err := r.requests.FindPendingExpired(ctx, r.asset.ID, r.now(), r.MaxCleanupBatch())
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ID)
	}
	return r.CleanupExpired(ctx, ids)
}

// SetTimeout changes the deadline applied to new requests. Existing
// requests keep the deadline they were created with.
func (r *RequestRegistry) SetTimeout(d time.Duration) error {
	if d < MinRequestTimeout || d > MaxRequestTimeout {
		return ErrInvalidTimeout
	}
	r.mu.Lock()
	old := r.timeout
	r.timeout = d
	r.mu.Unlock()
	r.publish(events.SettlementEvent{
		Event:  events.EventRequestTimeoutUpdated,
		Ticker: r.asset.Ticker,
		Amount: d.String(),
		Reason: "was " + old.String(),
	})
	return nil
}

func (r *RequestRegistry) Timeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeout
}

func (r *RequestRegistry) MaxCleanupBatch() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxCleanupBatch
}

// GetRequest returns a request by id, scoped to this asset.
func (r *RequestRegistry) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	req, err := r.requests.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.Ticker != r.asset.Ticker {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// IsExpired reports whether the request's deadline has passed.
func (r *RequestRegistry) IsExpired(ctx context.Context, id string) (bool, error) {
	req, err := r.GetRequest(ctx, id)
	if err != nil {
		return false, err
	}
	return !req.Deadline.After(r.now()), nil
}

// TimeRemaining returns the time until the deadline, zero once passed.
func (r *RequestRegistry) TimeRemaining(ctx context.Context, id string) (time.Duration, error) {
	req, err := r.GetRequest(ctx, id)
	if err != nil {
		return 0, err
	}
	remaining := req.Deadline.Sub(r.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (r *RequestRegistry) publish(event events.SettlementEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(event); err != nil {
		logrus.WithField("event", event.Event).WithError(err).Warn("event publish failed")
	}
}

func (r *RequestRegistry) updateEscrowGauge(currency string) {
	bal := r.book.Balance(ledger.EscrowAccount(r.asset.Ticker), currency)
	f, _ := new(big.Float).SetInt(bal).Float64()
	metrics.EscrowHeld.WithLabelValues(r.asset.Ticker, currency).Set(f)
}
