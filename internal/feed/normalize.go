package feed

import (
	"fmt"
	"time"

	"futures-trader/internal/market"
)

// Wire payloads. Pointer fields distinguish "absent" from zero so a partial
// quote never wipes known state.

type tradeMsg struct {
	ContractID string   `json:"contractId"`
	Price      *float64 `json:"price"`
	Size       *float64 `json:"size"`
	ProducedAt int64    `json:"producedAt"` // unix millis
}

type quoteMsg struct {
	ContractID    string   `json:"contractId"`
	Bid           *float64 `json:"bid"`
	Ask           *float64 `json:"ask"`
	BidSize       *float64 `json:"bidSize"`
	AskSize       *float64 `json:"askSize"`
	Last          *float64 `json:"last"`
	Open          *float64 `json:"open"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
	Volume        *float64 `json:"volume"`
	ChangePercent *float64 `json:"changePercent"`
	ProducedAt    int64    `json:"producedAt"`
}

type depthMsg struct {
	ContractID string `json:"contractId"`
	Levels     []struct {
		Position int     `json:"position"`
		Size     float64 `json:"size"`
		Side     string  `json:"side"`
	} `json:"levels"`
	ProducedAt int64 `json:"producedAt"`
}

type accountMsg struct {
	AccountID  string   `json:"accountId"`
	Balance    *float64 `json:"balance"`
	Equity     *float64 `json:"equity"`
	DailyPnl   *float64 `json:"dailyPnl"`
	ProducedAt int64    `json:"producedAt"`
}

type positionMsg struct {
	ContractID string   `json:"contractId"`
	EntryPrice *float64 `json:"entryPrice"`
	Quantity   *int     `json:"quantity"`
	ProducedAt int64    `json:"producedAt"`
}

// normalizeTrade validates a trade payload into a market.Tick. A missing
// price is invalid; a missing size degrades to zero volume.
func normalizeTrade(m tradeMsg) (market.Tick, error) {
	if m.Price == nil || *m.Price <= 0 {
		return market.Tick{}, fmt.Errorf("trade without a usable price for %q", m.ContractID)
	}
	size := 0.0
	if m.Size != nil && *m.Size > 0 {
		size = *m.Size
	}
	ts := time.Now().UTC()
	if m.ProducedAt > 0 {
		ts = time.UnixMilli(m.ProducedAt).UTC()
	}
	return market.Tick{Timestamp: ts, Price: *m.Price, Size: size}, nil
}

// normalizeQuote maps the wire quote onto a partial update. At least one
// field must be present.
func normalizeQuote(m quoteMsg) (market.QuoteUpdate, error) {
	u := market.QuoteUpdate{
		Bid:           m.Bid,
		Ask:           m.Ask,
		BidSize:       m.BidSize,
		AskSize:       m.AskSize,
		Last:          m.Last,
		Open:          m.Open,
		High:          m.High,
		Low:           m.Low,
		Volume:        m.Volume,
		ChangePercent: m.ChangePercent,
	}
	if u == (market.QuoteUpdate{}) {
		return u, fmt.Errorf("empty quote payload for %q", m.ContractID)
	}
	return u, nil
}

// aggressorClassifier assigns each trade a side: at or through the ask is a
// buy, at or through the bid a sell, and inside the spread the tick rule
// against the previous trade price decides. The first inside-spread trade
// with no prior price defaults to buy.
type aggressorClassifier struct {
	prevPrice float64
}

func (c *aggressorClassifier) classify(price float64, q market.Quote) market.Direction {
	defer func() { c.prevPrice = price }()

	if q.Ask > 0 && price >= q.Ask {
		return market.Buy
	}
	if q.Bid > 0 && price <= q.Bid {
		return market.Sell
	}
	if c.prevPrice > 0 && price < c.prevPrice {
		return market.Sell
	}
	return market.Buy
}
