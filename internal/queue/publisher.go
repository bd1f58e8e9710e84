package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/config"
)

const dialTimeout = 2 * time.Second

// Publisher publishes occupancy events to a durable topic exchange.  Each
// publish opens its own connection; occupancy events are rare enough that a
// pooled connection is not worth the reconnect bookkeeping.  Failures are
// logged and returned so the caller can ignore them without failing the
// request.
type Publisher struct {
	cfg config.BrokerConfig
	log zerolog.Logger
}

// NewPublisher returns a publisher for cfg.
func NewPublisher(cfg config.BrokerConfig, log zerolog.Logger) *Publisher {
	return &Publisher{cfg: cfg, log: log.With().Str("component", "publisher").Logger()}
}

// PublishOccupancy publishes ev with its Kind as routing key.  Messages are
// persistent.
func (p *Publisher) PublishOccupancy(ctx context.Context, ev OccupancyEvent) error {
	logger := p.log.With().Str("kind", ev.Kind).Str("visit_id", ev.VisitID).Logger()

	conn, err := amqp.DialConfig(p.cfg.URL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declareExchange(ch, p.cfg.Exchange); err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: exchange declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		logger.Error().Err(err).Msg("rabbitmq: marshal event failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, p.cfg.Exchange, ev.Kind, false, false, pub); err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: publish failed")
		return err
	}
	logger.Debug().Msg("occupancy event published")
	return nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // kind
		true,    // durable
		false,   // autoDelete
		false,   // internal
		false,   // noWait
		nil,     // args
	)
}
