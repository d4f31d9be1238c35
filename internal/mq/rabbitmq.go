package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cinequiz/apiserver/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
)

// RabbitMQClient publishes to and consumes from work queues on the default
// exchange. Each queue dead-letters rejected deliveries to its sibling
// queue.
type RabbitMQClient struct {
	conn             *amqp.Connection
	channel          *amqp.Channel
	durable          bool
	autoDelete       bool
	deadLetterSuffix string
}

// NewRabbitMQClient dials the broker and opens one channel with the
// configured prefetch.
func NewRabbitMQClient(cfg config.RabbitMQConfig, deadLetterSuffix string) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, oops.Code("RABBITMQ_DIAL_FAILED").Wrap(err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("RABBITMQ_CHANNEL_FAILED").Wrap(err)
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, oops.Code("RABBITMQ_QOS_FAILED").With("prefetch", cfg.PrefetchCount).Wrap(err)
		}
	}

	return &RabbitMQClient{
		conn:             conn,
		channel:          ch,
		durable:          cfg.QueueDurable,
		autoDelete:       cfg.QueueAutoDelete,
		deadLetterSuffix: deadLetterSuffix,
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	if err := r.declare(channel); err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	err := r.channel.PublishWithContext(ctx, "", channel, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         attrs[AttrKind],
		Headers:      attributesToHeaders(attrs),
		Body:         data,
	})
	if err != nil {
		return "", oops.Code("RABBITMQ_PUBLISH_FAILED").With("queue", channel).Wrap(err)
	}
	return messageID, nil
}

// Subscribe consumes channel until ctx is cancelled and settles every
// delivery according to the handler's result.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	if err := r.declare(channel); err != nil {
		return err
	}

	consumerTag := "cinequiz-" + uuid.NewString()
	deliveries, err := r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return oops.Code("RABBITMQ_CONSUME_FAILED").With("queue", channel).Wrap(err)
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			message := Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			}
			if err := settle(delivery, handler(ctx, message)); err != nil {
				return oops.Code("RABBITMQ_SETTLE_FAILED").With("message_id", delivery.MessageId).Wrap(err)
			}
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// declare makes sure channel and its dead-letter queue exist. Publisher and
// consumer must declare with the same arguments or the broker refuses.
func (r *RabbitMQClient) declare(channel string) error {
	deadLetter := DeadLetterChannel(channel, r.deadLetterSuffix)
	if deadLetter != "" {
		if _, err := r.channel.QueueDeclare(deadLetter, r.durable, false, false, false, nil); err != nil {
			return oops.Code("RABBITMQ_DECLARE_FAILED").With("queue", deadLetter).Wrap(err)
		}
	}
	if _, err := r.channel.QueueDeclare(channel, r.durable, r.autoDelete, false, false, queueArgs(deadLetter)); err != nil {
		return oops.Code("RABBITMQ_DECLARE_FAILED").With("queue", channel).Wrap(err)
	}
	return nil
}

// queueArgs routes rejected deliveries through the default exchange to the
// dead-letter queue.
func queueArgs(deadLetter string) amqp.Table {
	if deadLetter == "" {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": deadLetter,
	}
}

// acknowledger is the settling half of amqp.Delivery.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

// settle acks, requeues or rejects one delivery. A reject without requeue
// is what moves the delivery to the dead-letter queue.
func settle(d acknowledger, handlerErr error) error {
	switch SettlementFor(handlerErr) {
	case SettleAck:
		return d.Ack(false)
	case SettleDeadLetter:
		return d.Reject(false)
	default:
		return d.Nack(false, true)
	}
}

func attributesToHeaders(attrs map[string]string) amqp.Table {
	if len(attrs) == 0 {
		return nil
	}
	headers := make(amqp.Table, len(attrs))
	for key, value := range attrs {
		headers[key] = value
	}
	return headers
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
