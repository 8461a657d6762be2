// Package broker is the boundary to the external order-routing side:
// submitting and cancelling orders, plus the cached account surface the
// risk engine sizes against.
package broker

import (
	"futures-trader/internal/market"
)

// OrderCommand is the wire payload published to the order-routing queue.
// command: SUBMIT_ORDER | CANCEL_ORDER.
type OrderCommand struct {
	Command       string  `json:"command"`
	ClientOrderID string  `json:"clientOrderId,omitempty"`
	ContractID    string  `json:"contractId,omitempty"`
	OrderCmd      string  `json:"orderCmd,omitempty"`
	Size          int     `json:"size,omitempty"`
	Price         float64 `json:"price,omitempty"`
	OrderID       string  `json:"orderId,omitempty"`
}

// Broker submits market orders and cancellations. Calls are synchronous up
// to broker acceptance; fills arrive later through the account feed.
type Broker interface {
	// SubmitMarketOrder returns the client order id on acceptance.
	SubmitMarketOrder(contractID string, direction market.Direction, size int) (string, error)
	CancelOrder(orderID string) error
}
