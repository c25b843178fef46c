package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

const markRetries = 3

// storedRecord — JSON-представление записи в Redis.
type storedRecord struct {
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	StatusCode   int       `json:"status_code,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IdempotencyRepository хранит ключи идемпотентности в Redis.
// Срок жизни ключа задаётся TTL самого Redis.
type IdempotencyRepository struct {
	client *Client
}

// NewIdempotencyRepository создаёт репозиторий поверх подключения.
func NewIdempotencyRepository(client *Client) *IdempotencyRepository {
	return &IdempotencyRepository{client: client}
}

// CreateProcessing атомарно занимает ключ через SET NX.
func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.client.clock()
	if ttlAt.IsZero() {
		ttlAt = now.Add(domain.DefaultIdempotencyTTL)
	}
	stored := storedRecord{
		RequestHash: requestHash,
		Status:      string(domain.IdempotencyStatusProcessing),
		TTLAt:       ttlAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("marshal idempotency record: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	created, err := r.client.rdb.SetNX(opCtx, r.redisKey(key), data, expiration(ttlAt, now)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, classify("create idempotency record", err)
	}
	if !created {
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}
	return stored.toDomain(key), nil
}

// Get возвращает запись по ключу.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := r.client.rdb.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, classify("get idempotency record", err)
	}
	stored, err := decodeRecord(raw)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("key %s: %w", key, err)
	}
	return stored.toDomain(key), nil
}

// MarkDone сохраняет успешный ответ, не меняя TTL.
func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, statusCode)
}

// MarkFailed сохраняет ответ с ошибкой, не меняя TTL.
func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, statusCode)
}

// DeleteExpired ничего не удаляет: Redis сам снимает ключи по TTL.
func (r *IdempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (r *IdempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, statusCode int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	redisKey := r.redisKey(key)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, redisKey).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return domain.ErrIdempotencyKeyNotFound
			}
			return err
		}
		stored, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		stored.Status = string(status)
		stored.ResponseBody = append([]byte(nil), responseBody...)
		stored.StatusCode = statusCode
		stored.UpdatedAt = r.client.clock()

		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal idempotency record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, goredis.KeepTTL)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < markRetries; attempt++ {
		err = r.client.rdb.Watch(ctx, update, redisKey)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err == nil || errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return err
	}
	return classify("mark idempotency key status", err)
}

func (r *IdempotencyRepository) redisKey(key string) string {
	return r.client.prefix + key
}

// expiration переводит момент истечения в TTL Redis; уже истёкший ключ живёт одну миллисекунду.
func expiration(ttlAt, now time.Time) time.Duration {
	ttl := ttlAt.Sub(now)
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}

func decodeRecord(raw []byte) (storedRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return storedRecord{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	if !domain.IdempotencyStatus(stored.Status).Valid() {
		return storedRecord{}, fmt.Errorf("invalid idempotency status %q", stored.Status)
	}
	return stored, nil
}

func (s storedRecord) toDomain(key string) domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          key,
		RequestHash:  s.RequestHash,
		ResponseBody: append([]byte(nil), s.ResponseBody...),
		StatusCode:   s.StatusCode,
		Status:       domain.IdempotencyStatus(s.Status),
		TTLAt:        s.TTLAt.UTC(),
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
