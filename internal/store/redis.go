package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const changeChannel = "frevo:store:changes"

// Redis is a Store backed by a Redis hash per scope, with change fanout over
// pub/sub so subscribers in other processes converge. Notification delivery
// is at-least-once and unordered across processes; callers are expected to
// re-apply state idempotently.
type Redis struct {
	client *redis.Client
	prefix string

	subCancel context.CancelFunc
	memory    *Memory // local dispatch of received notifications
}

// NewRedis connects to redisURL and verifies connectivity.
func NewRedis(ctx context.Context, redisURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	r := &Redis{client: client, prefix: prefix, memory: NewMemory()}
	r.startSubscriber()
	return r, nil
}

func (r *Redis) key(scope Scope) string {
	return fmt.Sprintf("%s:%s", r.prefix, scope)
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, scope Scope, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	vals, err := r.client.HMGet(ctx, r.key(scope), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store get %s: %w", scope, err)
	}

	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, scope Scope, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	old, err := r.Get(ctx, scope, keysOf(entries))
	if err != nil {
		return err
	}

	flat := make([]interface{}, 0, len(entries)*2)
	for k, v := range entries {
		flat = append(flat, k, v)
	}
	if err := r.client.HSet(ctx, r.key(scope), flat...).Err(); err != nil {
		return fmt.Errorf("store set %s: %w", scope, err)
	}

	for k, v := range entries {
		if old[k] == v {
			continue
		}
		r.publish(ctx, Change{Scope: scope, Key: k, OldValue: old[k], NewValue: v})
	}
	return nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, scope Scope, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	old, err := r.Get(ctx, scope, keys)
	if err != nil {
		return err
	}
	if err := r.client.HDel(ctx, r.key(scope), keys...).Err(); err != nil {
		return fmt.Errorf("store delete %s: %w", scope, err)
	}

	for k, v := range old {
		r.publish(ctx, Change{Scope: scope, Key: k, OldValue: v})
	}
	return nil
}

// Clear implements Store.
func (r *Redis) Clear(ctx context.Context, scope Scope) error {
	all, err := r.client.HGetAll(ctx, r.key(scope)).Result()
	if err != nil {
		return fmt.Errorf("store clear %s: %w", scope, err)
	}
	if err := r.client.Del(ctx, r.key(scope)).Err(); err != nil {
		return fmt.Errorf("store clear %s: %w", scope, err)
	}

	for k, v := range all {
		r.publish(ctx, Change{Scope: scope, Key: k, OldValue: v})
	}
	return nil
}

// Subscribe implements Store.
func (r *Redis) Subscribe(scope Scope, fn ChangeFunc) func() {
	return r.memory.Subscribe(scope, fn)
}

// Close stops the pub/sub subscriber and releases the client.
func (r *Redis) Close() error {
	if r.subCancel != nil {
		r.subCancel()
	}
	return r.client.Close()
}

func (r *Redis) publish(ctx context.Context, ch Change) {
	payload := fmt.Sprintf("%s\x00%s\x00%s\x00%s", ch.Scope, ch.Key, ch.OldValue, ch.NewValue)
	// Fanout failure only delays convergence of other processes; the write
	// itself already succeeded.
	_ = r.client.Publish(ctx, changeChannel+":"+r.prefix, payload).Err()
}

func (r *Redis) startSubscriber() {
	ctx, cancel := context.WithCancel(context.Background())
	r.subCancel = cancel

	sub := r.client.Subscribe(ctx, changeChannel+":"+r.prefix)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				parts := strings.SplitN(msg.Payload, "\x00", 4)
				if len(parts) != 4 {
					continue
				}
				r.dispatch(Change{
					Scope:    Scope(parts[0]),
					Key:      parts[1],
					OldValue: parts[2],
					NewValue: parts[3],
				})
			}
		}
	}()
}

// dispatch reuses the in-memory subscriber registry for local delivery.
func (r *Redis) dispatch(ch Change) {
	r.memory.notify(ch.Scope, []Change{ch})
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
