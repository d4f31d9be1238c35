package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/cinequiz/apiserver/config"
	"github.com/samber/oops"
	"google.golang.org/api/option"
)

const defaultSubscriptionSuffix = "-sub"

// PubSubClient maps channels to topics, each consumed through one
// subscription named channel + suffix.
type PubSubClient struct {
	client              *pubsub.Client
	subscriptionSuffix  string
	deadLetterSuffix    string
	maxDeliveryAttempts int

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig, deadLetterSuffix string, opts ...option.ClientOption) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, oops.Code("PUBSUB_CONNECT_FAILED").With("project_id", cfg.ProjectID).Wrap(err)
	}

	suffix := cfg.SubscriptionSuffix
	if suffix == "" {
		suffix = defaultSubscriptionSuffix
	}

	return &PubSubClient{
		client:              client,
		subscriptionSuffix:  suffix,
		deadLetterSuffix:    deadLetterSuffix,
		maxDeliveryAttempts: cfg.MaxDeliveryAttempts,
		topics:              make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends a message to the named topic and waits for the server id.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}
	id, err := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", oops.Code("PUBSUB_PUBLISH_FAILED").With("topic", channel).Wrap(err)
	}
	return id, nil
}

// Subscribe receives from the channel's subscription until ctx is
// cancelled. Requeued messages are nacked, so the subscription's dead-letter
// policy still catches results that fail on every attempt.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}
	var deadLetter *pubsub.Topic
	if name := DeadLetterChannel(channel, p.deadLetterSuffix); name != "" {
		if deadLetter, err = p.topic(ctx, name); err != nil {
			return err
		}
	}

	sub, err := p.subscription(ctx, channel+p.subscriptionSuffix, topic, deadLetter)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		err := handler(ctx, Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		})
		switch SettlementFor(err) {
		case SettleAck:
			msg.Ack()
		case SettleDeadLetter:
			p.deadLetter(ctx, deadLetter, msg, err)
		default:
			msg.Nack()
		}
	})
}

// deadLetter republishes msg with the reason attached and acks the
// original. Without a dead-letter topic the message is dropped. If the
// republish fails the original is nacked so nothing is lost.
func (p *PubSubClient) deadLetter(ctx context.Context, topic *pubsub.Topic, msg *pubsub.Message, reason error) {
	if topic == nil {
		msg.Ack()
		return
	}
	attrs := make(map[string]string, len(msg.Attributes)+1)
	for key, value := range msg.Attributes {
		attrs[key] = value
	}
	attrs[AttrDeadLetterReason] = reason.Error()

	if _, err := topic.Publish(ctx, &pubsub.Message{Data: msg.Data, Attributes: attrs}).Get(ctx); err != nil {
		msg.Nack()
		return
	}
	msg.Ack()
}

// Close flushes the cached publishers and closes the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	return p.client.Close()
}

// topic returns the named topic, creating it on first use. Topics are cached
// because each one owns a publish scheduler.
func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, oops.Code("PUBSUB_TOPIC_FAILED").With("topic", name).Wrap(err)
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, oops.Code("PUBSUB_TOPIC_FAILED").With("topic", name).Wrap(err)
		}
	}
	p.topics[name] = topic
	return topic, nil
}

func (p *PubSubClient) subscription(ctx context.Context, name string, topic, deadLetter *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, oops.Code("PUBSUB_SUBSCRIPTION_FAILED").With("subscription", name).Wrap(err)
	}
	if exists {
		return sub, nil
	}

	sub, err = p.client.CreateSubscription(ctx, name, subscriptionConfig(topic, deadLetter, p.maxDeliveryAttempts))
	if err != nil {
		return nil, oops.Code("PUBSUB_SUBSCRIPTION_FAILED").With("subscription", name).Wrap(err)
	}
	return sub, nil
}

func subscriptionConfig(topic, deadLetter *pubsub.Topic, maxDeliveryAttempts int) pubsub.SubscriptionConfig {
	cfg := pubsub.SubscriptionConfig{Topic: topic}
	if deadLetter != nil && maxDeliveryAttempts > 0 {
		cfg.DeadLetterPolicy = &pubsub.DeadLetterPolicy{
			DeadLetterTopic:     deadLetter.String(),
			MaxDeliveryAttempts: maxDeliveryAttempts,
		}
	}
	return cfg
}
