package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implementa un cache distribuito usando Redis
type RedisCache struct {
	client *redis.Client
	prefix string

	mu    sync.Mutex
	stats CacheStats
}

// NewRedisCache crea un nuovo cache Redis e verifica la connessione
func NewRedisCache(host, password string, db int, prefix string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         host,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, prefix: prefix}, nil
}

// Get recupera un valore da Redis
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	r.mu.Lock()
	defer r.mu.Unlock()

	if errors.Is(err, redis.Nil) {
		r.stats.Misses++
		return nil, ErrCacheMiss
	}
	if err != nil {
		r.stats.Misses++
		return nil, err
	}

	r.stats.Hits++
	return val, nil
}

// Set salva un valore in Redis
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.stats.Sets++
	r.mu.Unlock()
	return nil
}

// Delete rimuove un valore da Redis
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.stats.Deletes++
	r.mu.Unlock()
	return nil
}

// Clear rimuove tutte le chiavi con il prefisso del cache
func (r *RedisCache) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Stats restituisce le statistiche
func (r *RedisCache) Stats() CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Ping verifica la connessione
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close chiude la connessione Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}
