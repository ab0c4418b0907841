// Package events publishes storefront domain events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/omnipizza/storefront/internal/services"
)

// PubSubOrderPublisher publishes order.confirmed events to a Pub/Sub topic.
type PubSubOrderPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubOrderPublisher)(nil)

// NewPubSubOrderPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderPublisher(topic *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishOrderConfirmed sends the event and waits for the server-assigned message id.
func (p *PubSubOrderPublisher) PublishOrderConfirmed(ctx context.Context, event services.OrderConfirmedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "cartId", event.CartID)
	setAttr(attrs, "country", event.Country)
	setAttr(attrs, "idempotencyKey", event.IdempotencyKey)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
