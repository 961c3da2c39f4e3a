// Package market holds the simulated asset prices.
package market

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"
)

var ErrUnknownAsset = errors.New("unknown asset")

// Market is the process-wide price board. Prices reset to their seed values on
// restart; only the economy scheduler writes, everyone else reads.
type Market struct {
	mu     sync.RWMutex
	prices map[string]int64
	rand   *rand.Rand
}

// New seeds the board. The seed map is copied.
func New(seed map[string]int64) *Market {
	prices := make(map[string]int64, len(seed))
	for sym, p := range seed {
		prices[sym] = p
	}
	return &Market{
		prices: prices,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Price returns the current unit price of an asset.
func (m *Market) Price(symbol string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prices[symbol]
	if !ok {
		return 0, ErrUnknownAsset
	}
	return p, nil
}

// Symbols lists tracked assets in stable order.
func (m *Market) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.prices))
	for sym := range m.prices {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Tick replaces the price with price × uniform(low, high), truncated to an
// integer and floored at 1.
func (m *Market) Tick(symbol string, low, high float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prices[symbol]
	if !ok {
		return 0, ErrUnknownAsset
	}
	factor := low + m.rand.Float64()*(high-low)
	next := int64(float64(p) * factor)
	if next < 1 {
		next = 1
	}
	m.prices[symbol] = next
	return next, nil
}

// Value prices a holdings map against the current board. Unknown assets are
// skipped rather than erroring: a delisted symbol must not break valuation.
func (m *Market) Value(holdings map[string]float64) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for sym, qty := range holdings {
		if p, ok := m.prices[sym]; ok {
			total += int64(qty * float64(p))
		}
	}
	return total
}
