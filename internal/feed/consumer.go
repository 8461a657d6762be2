// Package feed consumes the external market-data queues and pushes their
// payloads into the market state, the account cache and the execution
// engine's position handler. Invalid payloads are dropped with a warning;
// they never crash aggregation.
package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"futures-trader/internal/broker"
	"futures-trader/internal/market"
)

const (
	staleMessageThreshold = 3 * time.Second

	tradesQueue    = "Market_Data_Trades"
	quotesQueue    = "Market_Data_Quotes"
	depthQueue     = "Market_Data_Depth"
	accountQueue   = "Account_Info"
	positionsQueue = "Position_Updates"
)

// PositionSink receives asynchronous position updates from the account
// feed.
type PositionSink interface {
	OnPositionUpdate(contractID string, entryPrice float64, quantity int)
}

// Consumer attaches one handler goroutine per queue.
type Consumer struct {
	conn       *amqp091.Connection
	contractID string
	state      *market.State
	accounts   *broker.AccountCache
	positions  PositionSink
	classifier aggressorClassifier
	log        *logrus.Logger
}

// NewConsumer connects with retries. Only messages for contractID are
// applied; everything else is dropped silently.
func NewConsumer(amqpURI, contractID string, st *market.State, accounts *broker.AccountCache, positions PositionSink, log *logrus.Logger) (*Consumer, error) {
	var conn *amqp091.Connection
	var err error

	for i := 0; i < 10; i++ {
		conn, err = amqp091.Dial(amqpURI)
		if err == nil {
			break
		}
		log.Warnf("RabbitMQ feed connection attempt %d failed: %s", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after 10 attempts: %w", err)
	}

	return &Consumer{
		conn:       conn,
		contractID: contractID,
		state:      st,
		accounts:   accounts,
		positions:  positions,
		log:        log,
	}, nil
}

// StartConsumers registers a consumer per queue, each handled on its own
// goroutine. Queues that do not exist yet are skipped, not fatal; the
// producing side declares them.
func (c *Consumer) StartConsumers() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		c.log.Warnf("Failed to set QoS: %s", err)
	}

	handleFunc := func(queueName string, handler func(d amqp091.Delivery)) {
		var msgs <-chan amqp091.Delivery
		var err error

		for retry := 0; retry < 3; retry++ {
			msgs, err = ch.Consume(
				queueName,
				"",    // consumer
				true,  // auto-ack
				false, // exclusive
				false, // no-local
				false, // no-wait
				nil,   // args
			)
			if err == nil {
				break
			}
			if strings.Contains(err.Error(), "NOT_FOUND") {
				c.log.Infof("Queue %s does not exist yet, skipping consumer registration", queueName)
				return
			}
			if strings.Contains(err.Error(), "channel/connection is not open") {
				c.log.Warnf("Channel not ready for queue %s, retrying (attempt %d/3)", queueName, retry+1)
				time.Sleep(1 * time.Second)
				continue
			}
			c.log.Errorf("Failed to register consumer for queue %s: %s", queueName, err)
			return
		}
		if err != nil {
			c.log.Errorf("Failed to register consumer for queue %s after retries: %s", queueName, err)
			return
		}

		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Errorf("Consumer for queue %s panicked: %v", queueName, r)
				}
			}()
			for d := range msgs {
				handler(d)
			}
			c.log.Infof("Consumer for queue %s has shut down", queueName)
		}()
		c.log.Infof("Started consumer for queue: %s", queueName)
	}

	handleFunc(tradesQueue, c.tradeHandler)
	handleFunc(quotesQueue, c.quoteHandler)
	handleFunc(depthQueue, c.depthHandler)
	handleFunc(accountQueue, c.accountHandler)
	handleFunc(positionsQueue, c.positionHandler)
	return nil
}

func isStale(producedAt int64) bool {
	if producedAt <= 0 {
		return false
	}
	return time.Now().UnixMilli()-producedAt > staleMessageThreshold.Milliseconds()
}

func (c *Consumer) tradeHandler(d amqp091.Delivery) {
	var msg tradeMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Warnf("Error unmarshalling trade: %s", err)
		return
	}
	if msg.ContractID != "" && msg.ContractID != c.contractID {
		return
	}
	if isStale(msg.ProducedAt) {
		return
	}
	tick, err := normalizeTrade(msg)
	if err != nil {
		c.log.Warnf("Dropping invalid trade: %s", err)
		return
	}
	dir := c.classifier.classify(tick.Price, c.state.Quote())
	c.state.ApplyTrade(tick, dir)
}

func (c *Consumer) quoteHandler(d amqp091.Delivery) {
	var msg quoteMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Warnf("Error unmarshalling quote: %s", err)
		return
	}
	if msg.ContractID != "" && msg.ContractID != c.contractID {
		return
	}
	if isStale(msg.ProducedAt) {
		return
	}
	update, err := normalizeQuote(msg)
	if err != nil {
		c.log.Warnf("Dropping invalid quote: %s", err)
		return
	}
	at := time.Now().UTC()
	if msg.ProducedAt > 0 {
		at = time.UnixMilli(msg.ProducedAt).UTC()
	}
	c.state.ApplyQuote(update, at)
}

func (c *Consumer) depthHandler(d amqp091.Delivery) {
	var msg depthMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Warnf("Error unmarshalling depth: %s", err)
		return
	}
	if msg.ContractID != "" && msg.ContractID != c.contractID {
		return
	}
	if isStale(msg.ProducedAt) {
		return
	}
	if len(msg.Levels) == 0 {
		c.log.Warn("Dropping empty depth payload")
		return
	}
	levels := make([]market.DepthLevel, 0, len(msg.Levels))
	for _, l := range msg.Levels {
		levels = append(levels, market.DepthLevel{Position: l.Position, Size: l.Size, Side: l.Side})
	}
	c.state.ReplaceDepth(levels)
}

func (c *Consumer) accountHandler(d amqp091.Delivery) {
	var msg accountMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Warnf("Error unmarshalling account info: %s", err)
		return
	}
	if isStale(msg.ProducedAt) {
		return
	}
	if msg.Equity == nil {
		c.log.Warn("Dropping account info without equity")
		return
	}
	st := broker.AccountState{
		AccountID: msg.AccountID,
		Equity:    *msg.Equity,
		UpdatedAt: time.Now().UTC(),
	}
	if msg.Balance != nil {
		st.Balance = *msg.Balance
	}
	if msg.DailyPnl != nil {
		st.DailyPnl = *msg.DailyPnl
	}
	c.accounts.Update(st)
}

func (c *Consumer) positionHandler(d amqp091.Delivery) {
	var msg positionMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Warnf("Error unmarshalling position update: %s", err)
		return
	}
	if msg.Quantity == nil {
		c.log.Warn("Dropping position update without quantity")
		return
	}
	entry := 0.0
	if msg.EntryPrice != nil {
		entry = *msg.EntryPrice
	}
	c.positions.OnPositionUpdate(msg.ContractID, entry, *msg.Quantity)
}

// Close closes the consumer's connection.
func (c *Consumer) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
