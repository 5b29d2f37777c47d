// Package redisnotify publishes alert notifications and exhaustion reports to
// Redis Streams, where the push gateway and the admin console consume them.
package redisnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mr1hm/guard-dispatch/internal/notify"
)

const (
	DefaultAlertStream     = "dispatch:alerts"
	DefaultExhaustedStream = "dispatch:exhausted"
)

type Options struct {
	AlertStream     string
	ExhaustedStream string
	// MaxLen trims each stream to roughly this many entries; 0 keeps everything.
	MaxLen int64
}

type Streams struct {
	client redis.Cmdable
	opts   Options
	now    func() time.Time
}

var (
	_ notify.Notifier = (*Streams)(nil)
	_ notify.Monitor  = (*Streams)(nil)
)

func New(client redis.Cmdable, opts Options) *Streams {
	if opts.AlertStream == "" {
		opts.AlertStream = DefaultAlertStream
	}
	if opts.ExhaustedStream == "" {
		opts.ExhaustedStream = DefaultExhaustedStream
	}
	return &Streams{client: client, opts: opts, now: time.Now}
}

func (s *Streams) Notify(ctx context.Context, n notify.Notification) error {
	_, err := s.publish(ctx, s.opts.AlertStream, map[string]any{
		"guard_id":    n.GuardID,
		"incident_id": n.IncidentID,
		"alert_id":    n.AlertID,
		"kind":        string(n.Kind),
	}, n)
	return err
}

func (s *Streams) Exhausted(ctx context.Context, e notify.Exhaustion) error {
	_, err := s.publish(ctx, s.opts.ExhaustedStream, map[string]any{
		"incident_id": e.IncidentID,
	}, e)
	return err
}

// publish writes the routing fields alongside the full JSON payload so
// consumers can filter without decoding.
func (s *Streams) publish(ctx context.Context, stream string, fields map[string]any, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error encoding %s payload: %w", stream, err)
	}

	values := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		values[k] = v
	}
	values["data"] = string(data)
	values["timestamp"] = s.now().Unix()

	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if s.opts.MaxLen > 0 {
		args.MaxLen = s.opts.MaxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("error publishing to %s: %w", stream, err)
	}
	return id, nil
}
