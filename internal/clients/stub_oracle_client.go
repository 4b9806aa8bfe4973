package clients

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"settlement-backend/internal/models"
)

// StubOracleClient is an in-process oracle used by tests and DB-less dev
// mode. It issues deterministic-looking request ids and records every
// dispatch so tests can replay callbacks.
type StubOracleClient struct {
	mu         sync.Mutex
	dispatches []StubDispatch
	failNext   error
}

type StubDispatch struct {
	RequestID         string
	Direction         models.Direction
	Amount            string
	ExternalAccountID string
	Ticker            string
}

func NewStubOracleClient() *StubOracleClient {
	return &StubOracleClient{}
}

// FailNext makes the next Dispatch call return err instead of an id.
func (c *StubOracleClient) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

func (c *StubOracleClient) Dispatch(ctx context.Context, direction models.Direction, amount string, externalAccountID, ticker string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return "", err
	}
	seed := fmt.Sprintf("%s|%s|%s|%s|%s", direction, amount, externalAccountID, ticker, uuid.NewString())
	id := hexutil.Encode(crypto.Keccak256([]byte(seed)))
	c.dispatches = append(c.dispatches, StubDispatch{
		RequestID:         id,
		Direction:         direction,
		Amount:            amount,
		ExternalAccountID: externalAccountID,
		Ticker:            ticker,
	})
	return id, nil
}

// Dispatches returns a copy of everything dispatched so far.
func (c *StubOracleClient) Dispatches() []StubDispatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StubDispatch, len(c.dispatches))
	copy(out, c.dispatches)
	return out
}

// LastRequestID returns the id of the most recent dispatch, or "".
func (c *StubOracleClient) LastRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.dispatches) == 0 {
		return ""
	}
	return c.dispatches[len(c.dispatches)-1].RequestID
}
