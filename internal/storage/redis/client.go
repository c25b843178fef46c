// Package redis содержит хранилища на Redis: ключи идемпотентности с нативным TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

const (
	defaultKeyPrefix   = "shiftlab:idem:"
	defaultDialTimeout = 3 * time.Second
	opTimeout          = 2 * time.Second
)

// Options задаёт параметры подключения.
type Options struct {
	Password  string
	DB        int
	KeyPrefix string
	PoolSize  int
	Clock     func() time.Time
}

// Option изменяет Options.
type Option func(*Options)

// WithPassword задаёт пароль Redis.
func WithPassword(password string) Option {
	return func(o *Options) { o.Password = password }
}

// WithDB выбирает номер логической базы.
func WithDB(db int) Option {
	return func(o *Options) { o.DB = db }
}

// WithKeyPrefix задаёт префикс ключей идемпотентности.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) {
		if strings.TrimSpace(prefix) != "" {
			o.KeyPrefix = prefix
		}
	}
}

// WithPoolSize задаёт размер пула соединений.
func WithPoolSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.PoolSize = size
		}
	}
}

// WithClock подменяет часы (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}

// Client — подключение к Redis с общими настройками хранилищ.
type Client struct {
	rdb    *goredis.Client
	prefix string
	clock  func() time.Time
}

// Open подключается к Redis и проверяет соединение командой PING.
func Open(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	options := Options{
		KeyPrefix: defaultKeyPrefix,
		PoolSize:  20,
		Clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&options)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    options.Password,
		DB:          options.DB,
		PoolSize:    options.PoolSize,
		DialTimeout: defaultDialTimeout,
	})
	client := &Client{rdb: rdb, prefix: options.KeyPrefix, clock: options.Clock}
	if err := client.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return client, nil
}

// Redis возвращает нижележащий клиент (для redislock и health checks).
func (c *Client) Redis() *goredis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// Ping проверяет доступность Redis.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return errors.New("redis client is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return classify("ping redis", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// classify сводит сетевые ошибки и таймауты к domain.ErrStorageUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ domain.Pinger = (*Client)(nil)
