package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// ErrInProgress — запрос с тем же ключом ещё выполняется.
var ErrInProgress = errors.New("request with the same idempotency key is already processing")

// derivedIDNamespace задаёт пространство ID, выводимых из ключа идемпотентности.
var derivedIDNamespace = uuid.MustParse("6f1d2c3e-8a47-4b5e-9c1a-2d7e4f6a8b90")

// Guard регистрирует ключи повторяемых запросов и хранит их ответы.
type Guard struct {
	repo  domain.IdempotencyRepository
	ttl   time.Duration
	clock func() time.Time
}

// NewGuard создаёт Guard. ttl<=0 означает domain.DefaultIdempotencyTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, clock func() time.Time) *Guard {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Guard{repo: repo, ttl: ttl, clock: clock}
}

// Enabled сообщает, что хранилище ключей настроено.
func (g *Guard) Enabled() bool {
	return g != nil && g.repo != nil
}

// Begin занимает ключ под запрос с хэшем requestHash.
//
// fresh=true означает, что запрос нужно выполнить и затем вызвать Complete или Fail.
// fresh=false возвращает запись предыдущего выполнения со статусом done или failed.
// Ключ, занятый другим телом запроса, даёт domain.ErrIdempotencyHashMismatch,
// незавершённый запрос даёт ErrInProgress.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (record domain.IdempotencyRecord, fresh bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, false, domain.ErrIdempotencyKeyRequired
	}

	record, err = g.repo.CreateProcessing(ctx, key, requestHash, g.clock().Add(g.ttl))
	switch {
	case err == nil:
		return record, true, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return record, false, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing {
			return record, false, ErrInProgress
		}
		return record, false, nil
	default:
		return domain.IdempotencyRecord{}, false, err
	}
}

// Complete сохраняет успешный ответ.
func (g *Guard) Complete(ctx context.Context, key string, body []byte, statusCode int) error {
	return g.repo.MarkDone(ctx, strings.TrimSpace(key), body, statusCode)
}

// Fail сохраняет ответ с ошибкой. Повтор с тем же ключом вернёт его без выполнения.
func (g *Guard) Fail(ctx context.Context, key string, body []byte, statusCode int) error {
	return g.repo.MarkFailed(ctx, strings.TrimSpace(key), body, statusCode)
}

// RequestHash считает отпечаток запроса в пределах операции scope.
func RequestHash(scope string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{':'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// DerivedID выводит ID создаваемой сущности из ключа и отпечатка запроса,
// чтобы повторное выполнение не создало вторую запись.
func DerivedID(key, requestHash string) string {
	return uuid.NewSHA1(derivedIDNamespace, []byte(strings.TrimSpace(key)+":"+requestHash)).String()
}
