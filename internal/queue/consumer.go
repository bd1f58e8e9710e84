package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/config"
)

// occupancyLogFile is written under BrokerConfig.LogDir.
const occupancyLogFile = "occupancy.log"

// StartOccupancyConsumer binds a durable queue to every visit.* routing key
// and appends each message to <LogDir>/occupancy.log.  It reconnects with
// exponential backoff and returns only when ctx is cancelled.  A message that
// cannot be handled is rejected without requeue so one bad payload cannot
// spin the loop.
func StartOccupancyConsumer(ctx context.Context, cfg config.BrokerConfig, log zerolog.Logger) error {
	log = log.With().Str("component", "occupancy-consumer").Logger()
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, cfg, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg config.BrokerConfig, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}
	if err := declareExchange(ch, cfg.Exchange); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(cfg.Queue, "visit.*", cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	msgs, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(cfg.LogDir, d.Body); err != nil {
				log.Error().Err(err).Msg("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(dir string, body []byte) error {
	var ev OccupancyEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" || ev.VisitID == "" {
		return errors.New("event without kind or visit id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, occupancyLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders one event as a single human readable log line.
func FormatLine(ev OccupancyEvent) string {
	switch ev.Kind {
	case VisitEnded:
		return fmt.Sprintf("[%s] Visit ended | visit_id=%s | customer=%q | %s %s | late_minutes=%d | late_fee=%s | ban=%t\n",
			ev.OccurredAt, ev.VisitID, ev.CustomerName, ev.ResourceType, ev.ResourceNumber,
			ev.LateMinutes, orZero(ev.LateFee), ev.BanApplied)
	case VisitRenewed:
		return fmt.Sprintf("[%s] Visit renewed | visit_id=%s | customer=%q | %s %s | %s | until=%s\n",
			ev.OccurredAt, ev.VisitID, ev.CustomerName, ev.ResourceType, ev.ResourceNumber, ev.RentalType, ev.EndsAt)
	default:
		return fmt.Sprintf("[%s] Visit started | visit_id=%s | customer=%q | lane=%s | %s %s | %s | until=%s\n",
			ev.OccurredAt, ev.VisitID, ev.CustomerName, ev.LaneID, ev.ResourceType, ev.ResourceNumber, ev.RentalType, ev.EndsAt)
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
