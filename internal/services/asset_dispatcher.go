package services

import (
	"context"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"settlement-backend/internal/clients"
	"settlement-backend/internal/metrics"
	"settlement-backend/internal/models"
	"settlement-backend/internal/utils"
)

// AssetDispatcher is the single gateway between request registries and the
// execution oracle. It authorizes one registry instance per ticker for
// outbound dispatches and routes every callback to the registry that
// issued the request, even after that registry has been deauthorized.
type AssetDispatcher struct {
	mu         sync.Mutex
	oracle     clients.ExecutionOracleClient
	authorized map[string]*RequestRegistry
	// issued routes callbacks by request id. Entries are kept after
	// settlement so duplicate callbacks reach the registry's terminal
	// guard instead of being dropped here.
	issued map[string]*RequestRegistry
}

func NewAssetDispatcher(oracle clients.ExecutionOracleClient) *AssetDispatcher {
	return &AssetDispatcher{
		oracle:     oracle,
		authorized: make(map[string]*RequestRegistry),
		issued:     make(map[string]*RequestRegistry),
	}
}

// Authorize records the registry instance allowed to dispatch for a ticker.
func (d *AssetDispatcher) Authorize(ticker string, registry *RequestRegistry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authorized[ticker] = registry
}

// Deauthorize removes the registry's dispatch permission. Passing a stale
// instance fails so a delisted registry cannot knock out its successor.
func (d *AssetDispatcher) Deauthorize(ticker string, registry *RequestRegistry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.authorized[ticker]
	if !ok {
		return ErrAssetNotFound
	}
	if current != registry {
		return ErrTokenAddressMismatch
	}
	delete(d.authorized, ticker)
	return nil
}

// Dispatch forwards an order to the oracle on behalf of a registry and
// records the issued request id for callback routing.
func (d *AssetDispatcher) Dispatch(ctx context.Context, registry *RequestRegistry, direction models.Direction, amount, externalAccountID string) (string, error) {
	d.mu.Lock()
	current, ok := d.authorized[registry.Ticker()]
	d.mu.Unlock()
	if !ok || current != registry {
		return "", ErrNotAuthorized
	}

	requestID, err := d.oracle.Dispatch(ctx, direction, amount, externalAccountID, registry.Ticker())
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.issued[requestID] = registry
	d.mu.Unlock()
	return requestID, nil
}

// Forget drops the routing entry for a request whose creation was rolled
// back. Settled requests keep their entries.
func (d *AssetDispatcher) Forget(requestID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.issued, requestID)
}

// OnOracleResult routes an oracle callback to the registry that issued the
// request. The result payload is a big-endian uint256; success is an empty
// error payload.
func (d *AssetDispatcher) OnOracleResult(ctx context.Context, requestID string, resultBytes, errBytes []byte) error {
	d.mu.Lock()
	registry, ok := d.issued[requestID]
	d.mu.Unlock()
	if !ok {
		metrics.OracleCallbacks.WithLabelValues("unknown").Inc()
		return ErrRequestNotFound
	}

	// a non-empty error payload signals failure regardless of the result
	// bytes, so only success callbacks need a decodable amount
	success := len(errBytes) == 0
	var resultAmount *big.Int
	if success {
		var err error
		resultAmount, err = utils.DecodeResultAmount(resultBytes)
		if err != nil {
			metrics.OracleCallbacks.WithLabelValues("malformed").Inc()
			return err
		}
	}

	if err := registry.OnFulfill(ctx, requestID, resultAmount, success); err != nil {
		metrics.OracleCallbacks.WithLabelValues("rejected").Inc()
		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticker":     registry.Ticker(),
		}).WithError(err).Warn("oracle callback rejected")
		return err
	}
	metrics.OracleCallbacks.WithLabelValues("settled").Inc()
	return nil
}
