/**
 * @description
 * Queue consumer for platform events. Each subscription declares a durable
 * queue bound to the platform topic exchange by routing key and feeds
 * deliveries to a Handler; the handler's return value drives the ack:
 * true acknowledges, false returns the message to the queue for redelivery.
 */
package rabbitmq

import (
	"errors"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery body. Return true to acknowledge the
// message, false to requeue it. Handlers must treat unprocessable payloads
// as acknowledged or the broker will redeliver them forever.
type Handler func(body []byte) bool

// prefetchCount bounds unacknowledged deliveries per subscription so a slow
// database does not pull the whole queue into memory.
const prefetchCount = 8

// Consumer owns one connection with one channel per subscription.
type Consumer struct {
	conn *amqp091.Connection
}

// NewConsumer dials the broker with a bounded timeout.
func NewConsumer(amqpURL string) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	return &Consumer{conn: conn}, nil
}

// Subscribe declares the durable queue, binds it to the topic exchange under
// every routing key in handlers, and starts the delivery loop on its own
// channel. Deliveries with a routing key no handler claims are acknowledged
// and dropped; they would otherwise redeliver forever.
func (c *Consumer) Subscribe(exchange, queueName string, handlers map[string]Handler) error {
	if len(handlers) == 0 {
		return errors.New("subscription requires at least one handler")
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return err
	}
	queue, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return err
	}
	for routingKey := range handlers {
		if err := ch.QueueBind(queue.Name, routingKey, exchange, false, nil); err != nil {
			ch.Close()
			return err
		}
	}

	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return err
	}

	go func() {
		for d := range deliveries {
			handler, ok := handlers[d.RoutingKey]
			if !ok {
				log.Printf("level=warn component=amqp_consumer queue=%s msg=\"no handler for routing key; dropping\" routing_key=%s", queueName, d.RoutingKey)
				d.Ack(false)
				continue
			}
			if handler(d.Body) {
				d.Ack(false)
			} else {
				log.Printf("level=warn component=amqp_consumer queue=%s msg=\"handler requeued message\" routing_key=%s", queueName, d.RoutingKey)
				d.Nack(false, true)
			}
		}
		log.Printf("level=warn component=amqp_consumer queue=%s msg=\"delivery channel closed\"", queueName)
	}()

	return nil
}

// Close shuts the connection, which tears down every subscription channel.
func (c *Consumer) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
