package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arbwatch/arbwatch/internal/domain"
)

var _ domain.SignalBus = (*SignalBus)(nil)

// SignalBus publishes signals on a pub/sub channel for live consumers and
// appends them to a capped stream so late consumers can replay history.
type SignalBus struct {
	client *Client
}

func NewSignalBus(client *Client) *SignalBus {
	return &SignalBus{client: client}
}

func (b *SignalBus) Publish(ctx context.Context, sig domain.ArbSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal: %w", err)
	}
	if err := b.client.rdb.Publish(ctx, b.client.opts.SignalChannel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish signal: %w", err)
	}
	return nil
}

// Subscribe delivers live signals until ctx is done.
func (b *SignalBus) Subscribe(ctx context.Context) (<-chan domain.ArbSignal, error) {
	sub := b.client.rdb.Subscribe(ctx, b.client.opts.SignalChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis: subscribe: %w", err)
	}

	out := make(chan domain.ArbSignal)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var sig domain.ArbSignal
				if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
					continue
				}
				select {
				case out <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *SignalBus) StreamAppend(ctx context.Context, sig domain.ArbSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal: %w", err)
	}
	err = b.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.client.opts.StreamKey,
		MaxLen: b.client.opts.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"signal": data},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append: %w", err)
	}
	return nil
}

// StreamRead returns up to count recent entries starting after lastID.
// Pass "0" to read from the beginning.
func (b *SignalBus) StreamRead(ctx context.Context, lastID string, count int64) ([]domain.StreamMessage, error) {
	entries, err := b.client.rdb.XRangeN(ctx, b.client.opts.StreamKey, nextStreamID(lastID), "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream read: %w", err)
	}
	out := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values["signal"].(string)
		if !ok {
			continue
		}
		out = append(out, domain.StreamMessage{ID: e.ID, Payload: []byte(raw)})
	}
	return out, nil
}

func nextStreamID(lastID string) string {
	if lastID == "" || lastID == "0" {
		return "-"
	}
	return "(" + lastID
}
