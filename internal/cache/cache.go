package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound возвращается, когда ключ отсутствует в кэше.
var ErrKeyNotFound = errors.New("cache: key not found")

// Cache — это обертка над Redis-клиентом. Все TTL-ключи безопасности
// (блокировки, дедупликация, rate limit) живут здесь.
type Cache struct {
	client *redis.Client
}

// New подключается к Redis и проверяет соединение через PING.
func New(ctx context.Context, addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping failed: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewFromClient оборачивает готовый клиент. Используется в тестах с miniredis.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cache: get %q: %w", key, err)
	}
	return val, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// SetNX записывает значение только если ключа еще нет.
// Возвращает true, если запись произошла (мы первые).
func (c *Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: setnx %q: %w", key, err)
	}
	return ok, nil
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: del: %w", err)
	}
	return nil
}

// Incr атомарно увеличивает счетчик. При первом инкременте ставит TTL,
// чтобы счетчик сам сбрасывался по истечении окна.
func (c *Cache) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: incr %q: %w", key, err)
	}
	if n == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return n, fmt.Errorf("cache: expire %q: %w", key, err)
		}
	}
	return n, nil
}

// TTL возвращает оставшееся время жизни ключа.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: ttl %q: %w", key, err)
	}
	return d, nil
}

// AcquireLock пытается взять распределенную блокировку через SET NX.
// Возвращает true, если блокировка наша. Блокировка истекает сама по TTL,
// поэтому упавший процесс не держит ее вечно.
func (c *Cache) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, key, owner, ttl)
}

// ReleaseLock снимает блокировку, только если она принадлежит owner.
// Проверка и удаление выполняются одним Lua-скриптом, иначе можно
// снять чужую блокировку, взятую после истечения нашей.
func (c *Cache) ReleaseLock(ctx context.Context, key, owner string) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	if err := script.Run(ctx, c.client, []string{key}, owner).Err(); err != nil {
		return fmt.Errorf("cache: release lock %q: %w", key, err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (c *Cache) Close() error {
	return c.client.Close()
}
