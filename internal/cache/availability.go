// Package cache keeps computed availability in redis. Every booking or block
// write for a provider bumps that provider's version, which orphans all of its
// cached days at once; orphans expire by TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Leganyst/master-booking/internal/timezone"
)

const keyPrefix = "availability"

type AvailabilityCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAvailabilityCache(rdb *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{rdb: rdb, ttl: ttl}
}

// NewRedisClient подключается и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Get возвращает версию провайдера, под которой искал. При промахе слоты
// считаются заново и кладутся через Set именно под эту версию: если между
// Get и Set была запись, результат уйдёт в уже осиротевший ключ.
func (c *AvailabilityCache) Get(ctx context.Context, providerID, serviceID uuid.UUID, date timezone.Date) ([]time.Time, int64, bool, error) {
	version, err := c.version(ctx, providerID)
	if err != nil {
		return nil, 0, false, err
	}
	raw, err := c.rdb.Get(ctx, SlotsKey(providerID, serviceID, date, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, version, false, fmt.Errorf("redis get: %w", err)
	}
	slots, err := DecodeSlots(raw)
	if err != nil {
		return nil, version, false, err
	}
	return slots, version, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, providerID, serviceID uuid.UUID, date timezone.Date, version int64, slots []time.Time) error {
	raw, err := EncodeSlots(slots)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, SlotsKey(providerID, serviceID, date, version), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, providerID uuid.UUID) error {
	if err := c.rdb.Incr(ctx, VersionKey(providerID)).Err(); err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) version(ctx context.Context, providerID uuid.UUID) (int64, error) {
	v, err := c.rdb.Get(ctx, VersionKey(providerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version: %w", err)
	}
	return v, nil
}

func VersionKey(providerID uuid.UUID) string {
	return fmt.Sprintf("%s:version:%s", keyPrefix, providerID)
}

func SlotsKey(providerID, serviceID uuid.UUID, date timezone.Date, version int64) string {
	return fmt.Sprintf("%s:%s:%s:%s:v%d", keyPrefix, providerID, serviceID, date, version)
}

func EncodeSlots(slots []time.Time) ([]byte, error) {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.UTC().Format(time.RFC3339))
	}
	return json.Marshal(out)
}

func DecodeSlots(raw []byte) ([]time.Time, error) {
	var in []string
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode cached slots: %w", err)
	}
	slots := make([]time.Time, 0, len(in))
	for _, s := range in {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("decode cached slot %q: %w", s, err)
		}
		slots = append(slots, t)
	}
	return slots, nil
}
