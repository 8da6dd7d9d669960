package rmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"taxihub/internal/trip"
)

type channeler interface {
	Channel() (*amqp.Channel, error)
}

// StatusPublisher publishes trip.status.{trip_id} messages to the trip
// exchange. It satisfies the coordinator's TripEvents interface.
type StatusPublisher struct {
	rmq channeler
	log *slog.Logger
}

func NewStatusPublisher(rmq channeler, log *slog.Logger) *StatusPublisher {
	return &StatusPublisher{rmq: rmq, log: log}
}

func (p *StatusPublisher) PublishStatus(ctx context.Context, tripID string, status trip.Status, riderID string) error {
	ch, err := p.rmq.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"trip_id":   tripID,
		"status":    status,
		"rider_id":  riderID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	routingKey := "trip.status." + tripID
	if err := ch.PublishWithContext(ctx,
		ExchangeTrips,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.log.Debug("trip status published", "trip_id", tripID, "status", status)
	return nil
}
