package events

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/omnipizza/storefront/internal/services"
)

// LogOrderPublisher writes events to the log. Used when no Pub/Sub project is configured.
type LogOrderPublisher struct {
	logger *zap.Logger
}

var _ services.OrderEventPublisher = (*LogOrderPublisher)(nil)

// NewLogOrderPublisher returns a publisher writing to logger, or a no-op logger when nil.
func NewLogOrderPublisher(logger *zap.Logger) *LogOrderPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogOrderPublisher{logger: logger.Named("events")}
}

func (p *LogOrderPublisher) PublishOrderConfirmed(_ context.Context, event services.OrderConfirmedEvent) (string, error) {
	id := ulid.Make().String()
	p.logger.Info("order event",
		zap.String("message_id", id),
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.String("cart_id", event.CartID),
		zap.String("country", event.Country),
		zap.String("total", event.Total),
		zap.Int("item_count", event.ItemCount),
	)
	return id, nil
}
