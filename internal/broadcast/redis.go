package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the Redis pub/sub channel shared by all instances.
const DefaultChannel = "clubdesk:events"

// RedisRelay publishes events to a Redis channel so that observers connected
// to any instance receive them.  Run feeds the channel back into the local
// hub.  When Redis is unreachable the event is delivered locally only.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   *Hub
	log     zerolog.Logger
}

// NewRedisRelay returns a relay over rdb.  An empty channel uses
// DefaultChannel.
func NewRedisRelay(rdb *redis.Client, channel string, local *Hub, log zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{rdb: rdb, channel: channel, local: local, log: log.With().Str("component", "relay").Logger()}
}

func (r *RedisRelay) Broadcast(ctx context.Context, ev Event) {
	ev.LaneID = ""
	r.publish(ctx, ev)
}

func (r *RedisRelay) BroadcastToLane(ctx context.Context, ev Event, laneID string) {
	ev.LaneID = laneID
	r.publish(ctx, ev)
}

func (r *RedisRelay) publish(ctx context.Context, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		r.log.Error().Err(err).Str("type", string(ev.Type)).Msg("marshal event")
		return
	}
	// a request context may already be cancelled once the response is written
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, b).Err(); err != nil {
		r.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("redis publish failed, delivering locally")
		r.local.Deliver(ev)
	}
}

// wireEvent keeps the payload raw so it is re-encoded byte for byte.
type wireEvent struct {
	Type      EventType       `json:"type"`
	LaneID    string          `json:"laneId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Run subscribes to the channel and hands every message to the local hub
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	r.log.Info().Str("channel", r.channel).Msg("relay subscribed")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var w wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
				r.log.Warn().Err(err).Msg("discard malformed event")
				continue
			}
			r.local.Deliver(Event{Type: w.Type, LaneID: w.LaneID, Payload: w.Payload, Timestamp: w.Timestamp})
		}
	}
}
