package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 3 * time.Second

// Client — обёртка над go-redis, на которой построены все Redis-хранилища
// сервисов: отметки обработанных событий, ключи идемпотентности резервов,
// read-through кэш и трекер жизненного цикла заказов.
type Client struct {
	rdb *redis.Client
}

// Open подключается к Redis и проверяет соединение ping-ом.
func Open(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// RDB открывает доступ к нижележащему клиенту go-redis.
func (c *Client) RDB() *redis.Client {
	return c.rdb
}

// Ping проверяет доступность Redis.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close закрывает соединение с Redis.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
