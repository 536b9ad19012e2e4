package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// LocationsPubSub fans out "availability changed" notices across instances.
type LocationsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewLocationsPubSub(rdb *redis.Client) *LocationsPubSub {
	return &LocationsPubSub{
		rdb:     rdb,
		channel: ChannelLocationsChanged(),
	}
}

type locationChangedMsg struct {
	Type       string `json:"type"`
	LocationID int64  `json:"parking_id"`
	Available  int    `json:"available"`
	Total      int    `json:"total"`
	TsUnix     int64  `json:"ts_unix"`
}

// LocationChange is what subscribers receive.
type LocationChange struct {
	LocationID int64
	Available  int
	Total      int
}

func (p *LocationsPubSub) PublishLocationChanged(ctx context.Context, c LocationChange) error {
	msg := locationChangedMsg{
		Type:       "parking_changed",
		LocationID: c.LocationID,
		Available:  c.Available,
		Total:      c.Total,
		TsUnix:     time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe blocks, calling handler for every change until ctx is done.
func (p *LocationsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, c LocationChange)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg locationChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.LocationID != 0 {
				handler(ctx, LocationChange{
					LocationID: msg.LocationID,
					Available:  msg.Available,
					Total:      msg.Total,
				})
			}
		}
	}
}
