package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"settlement-backend/internal/events"
	"settlement-backend/internal/ledger"
	"settlement-backend/internal/models"
	"settlement-backend/internal/repository"
)

// SettlementParams are the coordinator's operating knobs, loaded from
// configuration at startup.
type SettlementParams struct {
	BaseCurrency        string
	RequestTimeout      time.Duration
	MinAmount           *big.Int
	MaxAmount           *big.Int
	RequestCooldown     time.Duration
	MaxCleanupBatchSize int
}

// SettlementCoordinator is the engine's public entry point: participant
// registration, mint/redeem submission and every administrative operation.
// All public operations serialize on one mutex, so each call runs to
// completion against a consistent ledger before the next begins.
type SettlementCoordinator struct {
	mu sync.Mutex

	params       SettlementParams
	owner        string
	pendingOwner string
	paused       bool

	participants repository.ParticipantRepository
	requests     repository.RequestRepository
	assets       repository.AssetRepository
	book         *ledger.Ledger
	dispatcher   *AssetDispatcher
	publisher    events.Publisher
	logic        *LogicHandle

	registries map[string]*RequestRegistry

	now func() time.Time
}

type SettlementCoordinatorDeps struct {
	Params       SettlementParams
	Owner        string
	Participants repository.ParticipantRepository
	Requests     repository.RequestRepository
	Assets       repository.AssetRepository
	Ledger       *ledger.Ledger
	Dispatcher   *AssetDispatcher
	Publisher    events.Publisher
	Logic        *LogicHandle
	Now          func() time.Time
}

func NewSettlementCoordinator(deps SettlementCoordinatorDeps) *SettlementCoordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SettlementCoordinator{
		params:       deps.Params,
		owner:        strings.ToLower(deps.Owner),
		participants: deps.Participants,
		requests:     deps.Requests,
		assets:       deps.Assets,
		book:         deps.Ledger,
		dispatcher:   deps.Dispatcher,
		publisher:    deps.Publisher,
		logic:        deps.Logic,
		registries:   make(map[string]*RequestRegistry),
		now:          deps.Now,
	}
}

// RegisterParticipant binds an address to a brokerage account. The binding
// is immutable; registering an already-bound address fails.
func (c *SettlementCoordinator) RegisterParticipant(ctx context.Context, address, externalAccountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !common.IsHexAddress(address) {
		return ErrInvalidAddress
	}
	if strings.TrimSpace(externalAccountID) == "" {
		return ErrInvalidAccountID
	}
	address = strings.ToLower(address)

	if _, err := c.participants.GetByAddress(ctx, address); err == nil {
		return ErrAlreadyRegistered
	} else if err != repository.ErrNotFound {
		return err
	}

	if err := c.participants.Create(ctx, &models.Participant{
		Address:           address,
		ExternalAccountID: externalAccountID,
		CreatedAt:         c.now(),
	}); err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"address": address,
		"account": externalAccountID,
	}).Info("participant registered")
	return nil
}

// Mint submits a mint request: base currency in, asset tokens out.
//
// Guard order is fixed: pause, registration, rate limit, amount bounds,
// asset existence. The rate limit window is consumed before any dispatch,
// so a failed dispatch still counts against the cooldown.
func (c *SettlementCoordinator) Mint(ctx context.Context, address string, amount *big.Int, ticker string, expectedOutput *big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submit(ctx, models.DirectionMint, address, amount, ticker, expectedOutput)
}

// Redeem submits a redeem request: asset tokens in, base currency out.
// Only a non-zero lower bound applies to redeems.
func (c *SettlementCoordinator) Redeem(ctx context.Context, address string, amount *big.Int, ticker string, expectedOutput *big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submit(ctx, models.DirectionRedeem, address, amount, ticker, expectedOutput)
}

func (c *SettlementCoordinator) submit(ctx context.Context, direction models.Direction, address string, amount *big.Int, ticker string, expectedOutput *big.Int) (string, error) {
	if c.paused {
		return "", ErrPaused
	}
	address = strings.ToLower(address)
	participant, err := c.participants.GetByAddress(ctx, address)
	if err != nil {
		if err == repository.ErrNotFound {
			return "", ErrParticipantNotRegistered
		}
		return "", err
	}

	now := c.now()
	if !participant.LastRequestAt.IsZero() && now.Sub(participant.LastRequestAt) < c.params.RequestCooldown {
		return "", ErrRateLimited
	}
	// consume the cooldown window before anything can fail downstream
	if err := c.participants.UpdateLastRequest(ctx, address, now); err != nil {
		return "", err
	}

	if amount == nil || amount.Sign() <= 0 {
		return "", ErrAmountOutOfBounds
	}
	if direction == models.DirectionMint {
		if c.params.MinAmount != nil && amount.Cmp(c.params.MinAmount) < 0 {
			return "", ErrAmountOutOfBounds
		}
		if c.params.MaxAmount != nil && c.params.MaxAmount.Sign() > 0 && amount.Cmp(c.params.MaxAmount) > 0 {
			return "", ErrAmountOutOfBounds
		}
	}

	registry, ok := c.registries[ticker]
	if !ok {
		return "", ErrAssetNotFound
	}

	var requestID string
	if direction == models.DirectionMint {
		requestID, err = registry.CreateMintRequest(ctx, amount, address, participant.ExternalAccountID, expectedOutput)
	} else {
		requestID, err = registry.CreateRedeemRequest(ctx, amount, address, participant.ExternalAccountID, expectedOutput)
	}
	if err != nil {
		return "", err
	}

	if err := c.participants.AppendRequestID(ctx, address, requestID); err != nil {
		logrus.WithField("address", address).WithError(err).Warn("failed to record request id on participant")
	}
	return requestID, nil
}

// CleanupParticipantExpired expires the participant's overdue pending
// requests across the given tickers, refunding each. Returns the number
// expired. The participant's full request history is filtered down to the
// overdue pending subset per ticker and expired in batches of at most
// MaxCleanupBatchSize, so a long history never blocks cleanup.
func (c *SettlementCoordinator) CleanupParticipantExpired(ctx context.Context, address string, tickers []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	address = strings.ToLower(address)
	participant, err := c.participants.GetByAddress(ctx, address)
	if err != nil {
		if err == repository.ErrNotFound {
			return 0, ErrParticipantNotRegistered
		}
		return 0, err
	}
	ids := participant.RequestIDList()

	total := 0
	for _, ticker := range tickers {
		registry, ok := c.registries[ticker]
		if !ok {
			continue
		}
		due := registry.expiredPending(ctx, ids)
		for start := 0; start < len(due); start += c.params.MaxCleanupBatchSize {
			end := start + c.params.MaxCleanupBatchSize
			if end > len(due) {
				end = len(due)
			}
			n, err := registry.CleanupExpired(ctx, due[start:end])
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

// SweepExpired expires one batch of overdue requests per listed asset.
// Driven by the background cleanup service.
func (c *SettlementCoordinator) SweepExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, registry := range c.registries {
		n, err := registry.SweepExpired(ctx)
		if err != nil {
			logrus.WithField("ticker", registry.Ticker()).WithError(err).Warn("sweep failed")
			continue
		}
		total += n
	}
	return total, nil
}

// ListAsset lists a new ticker: creates the asset record, its registry and
// the dispatcher authorization. Owner only.
func (c *SettlementCoordinator) ListAsset(ctx context.Context, caller, ticker, displayName, metadataURI string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOwner(caller) {
		return ErrNotAuthorized
	}
	if _, exists := c.registries[ticker]; exists {
		return ErrAssetAlreadyExists
	}
	if _, err := c.assets.GetByTicker(ctx, ticker); err == nil {
		return ErrAssetAlreadyExists
	} else if err != repository.ErrNotFound {
		return err
	}

	asset := &models.Asset{
		Ticker:      ticker,
		DisplayName: displayName,
		MetadataURI: metadataURI,
		CreatedAt:   c.now(),
	}
	if err := c.assets.Create(ctx, asset); err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	registry := NewRequestRegistry(RequestRegistryParams{
		Asset:           *asset,
		Requests:        c.requests,
		Ledger:          c.book,
		Dispatcher:      c.dispatcher,
		Publisher:       c.publisher,
		Logic:           c.logic,
		BaseCurrency:    c.params.BaseCurrency,
		Timeout:         c.params.RequestTimeout,
		MaxCleanupBatch: c.params.MaxCleanupBatchSize,
		Now:             c.now,
	})
	c.registries[ticker] = registry
	c.dispatcher.Authorize(ticker, registry)

	c.publish(events.SettlementEvent{Event: events.EventTokenRegistered, Ticker: ticker})
	logrus.WithField("ticker", ticker).Info("asset listed")
	return nil
}

// DelistAsset removes a ticker from circulation. In-flight requests of the
// delisted registry still settle: the dispatcher keeps routing their
// callbacks to the old instance.
func (c *SettlementCoordinator) DelistAsset(ctx context.Context, caller, ticker string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOwner(caller) {
		return ErrNotAuthorized
	}
	registry, ok := c.registries[ticker]
	if !ok {
		return ErrAssetNotFound
	}
	if err := c.dispatcher.Deauthorize(ticker, registry); err != nil {
		return err
	}
	delete(c.registries, ticker)
	if err := c.assets.Delete(ctx, ticker); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	c.publish(events.SettlementEvent{Event: events.EventTokenRemoved, Ticker: ticker})
	logrus.WithField("ticker", ticker).Info("asset delisted")
	return nil
}

// SetAssetTimeout changes one asset's request deadline window. Owner only.
func (c *SettlementCoordinator) SetAssetTimeout(caller, ticker string, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOwner(caller) {
		return ErrNotAuthorized
	}
	registry, ok := c.registries[ticker]
	if !ok {
		return ErrAssetNotFound
	}
	return registry.SetTimeout(d)
}

// AdminExpire force-expires requests regardless of deadline. Owner only.
func (c *SettlementCoordinator) AdminExpire(ctx context.Context, caller, ticker string, ids []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOwner(caller) {
		return 0, ErrNotAuthorized
	}
	registry, ok := c.registries[ticker]
	if !ok {
		return 0, ErrAssetNotFound
	}
	return registry.AdminExpire(ctx, ids)
}

// Pause stops new submissions. Settlements and cleanup keep running so
// escrowed funds can always exit.
func (c *SettlementCoordinator) Pause(caller string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOwner(caller) {
		return ErrNotAuthorized
	}
	c.paused = true
	logrus.Warn("settlement submissions paused")
	return nil
}

func (c *SettlementCoordinator) Unpause(caller string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOwner(caller) {
		return ErrNotAuthorized
	}
	c.paused = false
	logrus.Info("settlement submissions resumed")
	return nil
}

func (c *SettlementCoordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// UpgradeExecutionLogic swaps the shared logic handle; every registry sees
// the new parameters on its next settlement. Owner only.
func (c *SettlementCoordinator) UpgradeExecutionLogic(caller string, logic ExecutionLogic) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOwner(caller) {
		return ErrNotAuthorized
	}
	c.logic.Upgrade(logic)
	logrus.WithField("version", logic.Version).Info("execution logic upgraded")
	return nil
}

// TransferOwnership nominates a new owner. Nothing changes until the
// nominee accepts.
func (c *SettlementCoordinator) TransferOwnership(caller, newOwner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOwner(caller) {
		return ErrNotAuthorized
	}
	if !common.IsHexAddress(newOwner) {
		return ErrInvalidAddress
	}
	c.pendingOwner = strings.ToLower(newOwner)
	return nil
}

// AcceptOwnership completes the handoff; only the nominee may call it.
func (c *SettlementCoordinator) AcceptOwnership(caller string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingOwner == "" || strings.ToLower(caller) != c.pendingOwner {
		return ErrNotAuthorized
	}
	c.owner = c.pendingOwner
	c.pendingOwner = ""
	logrus.WithField("owner", c.owner).Info("ownership transferred")
	return nil
}

func (c *SettlementCoordinator) Owner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Registry returns the live registry for a ticker, or nil.
func (c *SettlementCoordinator) Registry(ticker string) *RequestRegistry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registries[ticker]
}

// Assets returns the currently listed assets.
func (c *SettlementCoordinator) Assets(ctx context.Context) ([]models.Asset, error) {
	return c.assets.List(ctx)
}

// GetParticipant returns a registered participant.
func (c *SettlementCoordinator) GetParticipant(ctx context.Context, address string) (*models.Participant, error) {
	p, err := c.participants.GetByAddress(ctx, strings.ToLower(address))
	if err == repository.ErrNotFound {
		return nil, ErrParticipantNotRegistered
	}
	return p, err
}

// RestoreAssets rebuilds registries for assets already persisted, used at
// startup so listed tickers survive restarts.
func (c *SettlementCoordinator) RestoreAssets(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	assets, err := c.assets.List(ctx)
	if err != nil {
		return err
	}
	for _, asset := range assets {
		if _, exists := c.registries[asset.Ticker]; exists {
			continue
		}
		registry := NewRequestRegistry(RequestRegistryParams{
			Asset:           asset,
			Requests:        c.requests,
			Ledger:          c.book,
			Dispatcher:      c.dispatcher,
			Publisher:       c.publisher,
			Logic:           c.logic,
			BaseCurrency:    c.params.BaseCurrency,
			Timeout:         c.params.RequestTimeout,
			MaxCleanupBatch: c.params.MaxCleanupBatchSize,
			Now:             c.now,
		})
		c.registries[asset.Ticker] = registry
		c.dispatcher.Authorize(asset.Ticker, registry)
	}
	logrus.WithField("count", len(assets)).Info("assets restored")
	return nil
}

func (c *SettlementCoordinator) isOwner(caller string) bool {
	return c.owner != "" && strings.ToLower(caller) == c.owner
}

func (c *SettlementCoordinator) publish(event events.SettlementEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(event); err != nil {
		logrus.WithField("event", event.Event).WithError(err).Warn("event publish failed")
	}
}
