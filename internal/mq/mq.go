package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/types"
	"github.com/samber/oops"
)

// Backend names accepted by NewBackend.
const (
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
)

// Message attributes set on game results. Consumers can route and log on
// them without decoding the body.
const (
	AttrKind   = "kind"
	AttrUserID = "user_id"
	// AttrDeadLetterReason is set on messages moved to a dead-letter topic.
	AttrDeadLetterReason = "dead_letter_reason"
)

// ErrDeadLetter marks a message that can never be processed. Transports move
// it to the dead-letter queue instead of redelivering it.
var ErrDeadLetter = errors.New("dead letter")

// DeadLetter wraps err so the transport dead-letters the message.
func DeadLetter(err error) error {
	return fmt.Errorf("%w: %w", ErrDeadLetter, err)
}

// Settlement is what a transport does with a delivery once the handler
// returns.
type Settlement int

const (
	SettleAck Settlement = iota
	SettleRequeue
	SettleDeadLetter
)

func (s Settlement) String() string {
	switch s {
	case SettleAck:
		return "ack"
	case SettleRequeue:
		return "requeue"
	case SettleDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// SettlementFor maps a handler result to a settlement.
func SettlementFor(err error) Settlement {
	switch {
	case err == nil:
		return SettleAck
	case errors.Is(err, ErrDeadLetter):
		return SettleDeadLetter
	default:
		return SettleRequeue
	}
}

// DeadLetterChannel names the channel that collects dead letters for
// channel. An empty suffix disables dead-lettering.
func DeadLetterChannel(channel, suffix string) string {
	if suffix == "" {
		return ""
	}
	return channel + suffix
}

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. A nil error acks it, an error wrapped with
// DeadLetter moves it aside, and any other error requeues it.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// NewBackend connects to the broker selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendRabbitMQ, "":
		client, err := NewRabbitMQClient(cfg.RabbitMQ, cfg.DeadLetterSuffix)
		if err != nil {
			return nil, err
		}
		return client, nil
	case BackendPubSub:
		client, err := NewPubSubClient(ctx, cfg.PubSub, cfg.DeadLetterSuffix)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported mq backend %q", cfg.Backend)
	}
}

// GameResultQueue publishes and consumes game results on one channel.
type GameResultQueue struct {
	backend Backend
	channel string
}

func NewGameResultQueue(backend Backend, channel string) *GameResultQueue {
	return &GameResultQueue{backend: backend, channel: channel}
}

// Publish encodes result as JSON and sends it.
func (q *GameResultQueue) Publish(ctx context.Context, result types.GameResult) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", oops.Code("GAME_RESULT_ENCODE_FAILED").Wrap(err)
	}
	attrs := map[string]string{
		AttrKind:   string(result.Kind),
		AttrUserID: strconv.FormatInt(result.UserID, 10),
	}
	id, err := q.backend.Publish(ctx, q.channel, data, attrs)
	if err != nil {
		return "", oops.Code("GAME_RESULT_PUBLISH_FAILED").
			With("channel", q.channel).
			With("user_id", result.UserID).
			Wrap(err)
	}
	return id, nil
}

// Consume blocks delivering messages to handler until ctx is cancelled or
// the backend fails.
func (q *GameResultQueue) Consume(ctx context.Context, handler Handler) error {
	return q.backend.Subscribe(ctx, q.channel, handler)
}

// DecodeGameResult parses a message body.
func DecodeGameResult(msg Message) (types.GameResult, error) {
	var result types.GameResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		return types.GameResult{}, err
	}
	return result, nil
}

// Close closes the underlying backend.
func (q *GameResultQueue) Close() error {
	return q.backend.Close()
}
