// Package idempotency хранит отображение ключ→результат с TTL, схлопывая
// дубликаты запросов и событий в один эффект. Записи write-once-read-many:
// один и тот же ключ всегда отдаёт один и тот же результат до истечения TTL.
package idempotency

import (
	"context"
	"time"

	"checkout-saga/internal/cache"
)

type Store interface {
	// PutIfAbsent записывает value под key, если ключ свободен.
	// Возвращает действующее значение и признак «записали мы».
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error)
	// Get возвращает значение и признак наличия ключа.
	Get(ctx context.Context, key string) (string, bool, error)
	// Seen отмечает ключ увиденным; true — ключ встречен впервые.
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisStore struct {
	rdb    *cache.RedisClient
	prefix string
}

func NewRedisStore(rdb *cache.RedisClient, prefix string) Store {
	return &redisStore{rdb: rdb, prefix: prefix}
}

func (s *redisStore) key(k string) string { return s.prefix + ":" + k }

func (s *redisStore) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	stored, err := s.rdb.SetNX(ctx, s.key(key), value, ttl)
	if err != nil {
		return "", false, err
	}
	if stored {
		return value, true, nil
	}
	existing, err := s.rdb.Get(ctx, s.key(key))
	if cache.IsNil(err) {
		// ключ истёк между SetNX и Get — пробуем ещё раз
		return s.PutIfAbsent(ctx, key, value, ttl)
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key))
	if cache.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *redisStore) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, s.key(key), "1", ttl)
}
