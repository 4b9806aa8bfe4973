// Package ledger keeps the balance bookkeeping the settlement engine sits
// on: participant balances, per-asset escrow accounts and the treasury.
// Balances are 256-bit unsigned integers keyed by (account, currency).
package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// TreasuryAccount holds the base-currency float the engine pays redeems from.
const TreasuryAccount = "treasury"

// EscrowAccount returns the holding account for one asset's pending requests.
func EscrowAccount(ticker string) string {
	return "escrow:" + ticker
}

// Ledger is a mutex-guarded in-memory balance book. All mutating operations
// are atomic with respect to each other.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]map[string]*big.Int
}

func New() *Ledger {
	return &Ledger{balances: make(map[string]map[string]*big.Int)}
}

// Balance returns the current balance as a copy; never nil.
func (l *Ledger) Balance(account, currency string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cur, ok := l.balances[account]; ok {
		if v, ok := cur[currency]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

// Mint credits newly issued units to an account.
func (l *Ledger) Mint(account, currency string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, currency, amount)
	logrus.WithFields(logrus.Fields{
		"account":  account,
		"currency": currency,
		"amount":   amount.String(),
	}).Debug("ledger mint")
	return nil
}

// Burn destroys units held by an account.
func (l *Ledger) Burn(account, currency string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(account, currency, amount); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"account":  account,
		"currency": currency,
		"amount":   amount.String(),
	}).Debug("ledger burn")
	return nil
}

// Transfer moves units between accounts. Debit and credit happen under one
// lock so a failed debit leaves both accounts untouched.
func (l *Ledger) Transfer(from, to, currency string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(from, currency, amount); err != nil {
		return err
	}
	l.credit(to, currency, amount)
	return nil
}

func (l *Ledger) credit(account, currency string, amount *big.Int) {
	cur, ok := l.balances[account]
	if !ok {
		cur = make(map[string]*big.Int)
		l.balances[account] = cur
	}
	v, ok := cur[currency]
	if !ok {
		v = new(big.Int)
		cur[currency] = v
	}
	v.Add(v, amount)
}

func (l *Ledger) debit(account, currency string, amount *big.Int) error {
	cur, ok := l.balances[account]
	if !ok {
		return ErrInsufficientBalance
	}
	v, ok := cur[currency]
	if !ok || v.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	v.Sub(v, amount)
	return nil
}
