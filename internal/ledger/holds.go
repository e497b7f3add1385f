package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HoldStore keeps the reservations admitted but not yet committed. Add and List
// run under the user's lock; Remove may run without it.
type HoldStore interface {
	Add(ctx context.Context, res *Reservation) error
	Remove(ctx context.Context, userID, reservationID string) error
	List(ctx context.Context, userID string) ([]Reservation, error)
}

// MemoryHolds is the single-process HoldStore.
type MemoryHolds struct {
	mu    sync.Mutex
	holds map[string]map[string]Reservation
}

func NewMemoryHolds() *MemoryHolds {
	return &MemoryHolds{holds: make(map[string]map[string]Reservation)}
}

func (m *MemoryHolds) Add(_ context.Context, res *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holds[res.UserID] == nil {
		m.holds[res.UserID] = make(map[string]Reservation)
	}
	m.holds[res.UserID][res.ID] = *res
	return nil
}

func (m *MemoryHolds) Remove(_ context.Context, userID, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	holds := m.holds[userID]
	delete(holds, reservationID)
	if len(holds) == 0 {
		delete(m.holds, userID)
	}
	return nil
}

func (m *MemoryHolds) List(_ context.Context, userID string) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reservation, 0, len(m.holds[userID]))
	for _, res := range m.holds[userID] {
		out = append(out, res)
	}
	return out, nil
}

// RedisHolds shares holds between replicas in a hash per user, field = reservation
// id. A hold older than ttl belongs to a request that can no longer commit and is
// dropped on the next List.
type RedisHolds struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisHolds(client redis.UniversalClient, ttl time.Duration) *RedisHolds {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisHolds{
		client: client,
		prefix: "hold:user:",
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *RedisHolds) key(userID string) string {
	return r.prefix + userID
}

func (r *RedisHolds) Add(ctx context.Context, res *Reservation) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode hold: %w", err)
	}
	key := r.key(res.UserID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, res.ID, data)
	pipe.PExpire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store hold: %w", err)
	}
	return nil
}

func (r *RedisHolds) Remove(ctx context.Context, userID, reservationID string) error {
	if err := r.client.HDel(ctx, r.key(userID), reservationID).Err(); err != nil {
		return fmt.Errorf("remove hold: %w", err)
	}
	return nil
}

func (r *RedisHolds) List(ctx context.Context, userID string) ([]Reservation, error) {
	key := r.key(userID)
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load holds: %w", err)
	}

	now := r.now()
	out := make([]Reservation, 0, len(fields))
	var stale []string
	for id, raw := range fields {
		var res Reservation
		if err := json.Unmarshal([]byte(raw), &res); err != nil || now.Sub(res.CreatedAt) > r.ttl {
			stale = append(stale, id)
			continue
		}
		out = append(out, res)
	}
	if len(stale) > 0 {
		if err := r.client.HDel(ctx, key, stale...).Err(); err != nil {
			return nil, fmt.Errorf("drop stale holds: %w", err)
		}
	}
	return out, nil
}
