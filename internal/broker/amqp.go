package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"futures-trader/internal/market"
)

const orderCommandsQueue = "Order_Commands"

// AMQPBroker publishes order commands to the routing queue. Submission is
// rate limited so a runaway evaluation loop cannot flood the broker side;
// the limiter blocks briefly rather than rejecting.
type AMQPBroker struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	limiter *rate.Limiter
	log     *logrus.Logger
}

// NewAMQPBroker connects with retries, enables publisher confirms and
// declares the order-commands queue. ordersPerSecond <= 0 means 2/s with a
// burst of 4.
func NewAMQPBroker(amqpURI string, ordersPerSecond float64, log *logrus.Logger) (*AMQPBroker, error) {
	var conn *amqp091.Connection
	var err error

	for i := 0; i < 10; i++ {
		conn, err = amqp091.Dial(amqpURI)
		if err == nil {
			break
		}
		log.Warnf("RabbitMQ broker connection attempt %d failed: %s", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after 10 attempts: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		log.Warnf("Failed to enable publisher confirms: %s", err)
	}

	_, err = ch.QueueDeclare(
		orderCommandsQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue '%s': %w", orderCommandsQueue, err)
	}

	if ordersPerSecond <= 0 {
		ordersPerSecond = 2
	}
	return &AMQPBroker{
		conn:    conn,
		channel: ch,
		limiter: rate.NewLimiter(rate.Limit(ordersPerSecond), 4),
		log:     log,
	}, nil
}

// SubmitMarketOrder publishes a SUBMIT_ORDER command and returns the
// generated client order id.
func (b *AMQPBroker) SubmitMarketOrder(contractID string, direction market.Direction, size int) (string, error) {
	clientOrderID := uuid.NewString()
	cmd := OrderCommand{
		Command:       "SUBMIT_ORDER",
		ClientOrderID: clientOrderID,
		ContractID:    contractID,
		OrderCmd:      string(direction),
		Size:          size,
	}
	if err := b.publish(cmd); err != nil {
		return "", fmt.Errorf("submit market order for %s: %w", contractID, err)
	}
	b.log.WithFields(logrus.Fields{
		"contract":      contractID,
		"direction":     direction,
		"size":          size,
		"clientOrderId": clientOrderID,
	}).Info("📤 Market order submitted")
	return clientOrderID, nil
}

// CancelOrder publishes a CANCEL_ORDER command for a previously submitted
// order.
func (b *AMQPBroker) CancelOrder(orderID string) error {
	if err := b.publish(OrderCommand{Command: "CANCEL_ORDER", OrderID: orderID}); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	b.log.WithField("orderId", orderID).Info("Order cancellation submitted")
	return nil
}

func (b *AMQPBroker) publish(cmd OrderCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal order command: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("order rate limit: %w", err)
	}
	return b.channel.PublishWithContext(ctx, "", orderCommandsQueue, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close closes the broker's channel and connection.
func (b *AMQPBroker) Close() {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
