package broker

import (
	"fmt"
	"sync"
	"time"
)

// AccountState is one account-info update from the external feed.
type AccountState struct {
	AccountID string    `json:"accountId"`
	Balance   float64   `json:"balance"`
	Equity    float64   `json:"equity"`
	DailyPnl  float64   `json:"dailyPnl"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccountCache holds the last known account state, fed asynchronously by
// the market feed's account-info queue. Equity and AccountID report
// ok=false until the first update lands; consumers fail closed on unknown.
type AccountCache struct {
	mu                sync.RWMutex
	state             AccountState
	known             bool
	marginPerContract float64
}

// NewAccountCache configures the per-contract margin used for requirement
// estimates.
func NewAccountCache(marginPerContract float64) *AccountCache {
	if marginPerContract <= 0 {
		marginPerContract = 1320 // MES intraday margin default
	}
	return &AccountCache{marginPerContract: marginPerContract}
}

// Update replaces the cached state.
func (c *AccountCache) Update(s AccountState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.known = true
}

// Equity returns the last known equity, ok=false before the first update.
func (c *AccountCache) Equity() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.known {
		return 0, false
	}
	return c.state.Equity, true
}

// AccountID returns the last known account id, ok=false before the first
// update.
func (c *AccountCache) AccountID() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.known || c.state.AccountID == "" {
		return "", false
	}
	return c.state.AccountID, true
}

// DailyPnl returns the last reported daily PnL, ok=false before the first
// update.
func (c *AccountCache) DailyPnl() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.known {
		return 0, false
	}
	return c.state.DailyPnl, true
}

// MarginRequirement estimates the margin for size contracts.
func (c *AccountCache) MarginRequirement(contractID string, size int) (float64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("broker: non-positive size %d for %s", size, contractID)
	}
	return c.marginPerContract * float64(size), nil
}

// State returns a copy of the full cached state.
func (c *AccountCache) State() (AccountState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.known
}
