package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Payload is the JSON document published for every event.
type Payload struct {
	Event      Kind      `json:"event"`
	ID         int64     `json:"id,omitempty"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	Operator   string    `json:"operator"`
	Type       string    `json:"type"`
	Reason     *string   `json:"reason,omitempty"`
	Start      int64     `json:"start_ms"`
	End        int64     `json:"end_ms"`
	MassClear  bool      `json:"mass_clear,omitempty"`
	At         time.Time `json:"at"`
}

// EncodePayload converts ev to its published JSON form.
func EncodePayload(ev Event) ([]byte, error) {
	p := ev.Punishment
	payload := Payload{
		Event:      ev.Kind,
		Identifier: p.Identifier().String(),
		Name:       p.Name(),
		Operator:   p.Operator(),
		Type:       p.Type().String(),
		Start:      p.Start().UnixMilli(),
		End:        -1,
		MassClear:  ev.MassClear,
		At:         ev.At.UTC(),
	}
	if p.Type().IsTemp() {
		payload.End = p.End().UnixMilli()
	}
	if id, ok := p.ID(); ok {
		payload.ID = id
	}
	if reason, ok := p.Reason(); ok {
		payload.Reason = &reason
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: encode: %w", err)
	}
	return data, nil
}

// Publisher is the subset of *redis.Client used for publishing.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher forwards bus events to a Redis pub/sub channel. Events are
// buffered so bus listeners never wait on the network.
type RedisPublisher struct {
	client  Publisher
	channel string
	logger  *slog.Logger
	queue   chan Event
}

// NewRedisClient connects to addr using go-redis defaults.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// NewRedisPublisher creates a publisher writing to channel.
func NewRedisPublisher(client Publisher, channel string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger,
		queue:   make(chan Event, 256),
	}
}

// Listen is a Listener suitable for Bus.Subscribe. Events are dropped with a
// warning when the buffer is full.
func (r *RedisPublisher) Listen(ev Event) {
	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("event buffer full, dropping event", "event", ev.Kind)
	}
}

// Run publishes buffered events until ctx is cancelled.
func (r *RedisPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.queue:
			if err := r.publish(ctx, ev); err != nil {
				r.logger.Warn("publish event failed", "event", ev.Kind, "err", err)
			}
		}
	}
}

func (r *RedisPublisher) publish(ctx context.Context, ev Event) error {
	data, err := EncodePayload(ev)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", r.channel, err)
	}
	return nil
}
