package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation — входные данные некорректны; обнаруживается до обращения к хранилищу.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound — неизвестный заказ, автомобиль или позиция каталога.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock — остатка позиции не хватает для резервирования.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrentModification сигнализирует о конфликте версий заказа (lost update).
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrStorageUnavailable — хранилище недоступно или не ответило вовремя.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidAmount — отрицательная сумма/количество или лишние знаки после запятой.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidDiscount — процент скидки вне диапазона [0, 100].
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrOrderVoided — операция над уже аннулированным заказом.
	ErrOrderVoided = errors.New("order is voided")
	// ErrOrderInvariant — собранный заказ нарушает инварианты и не может быть сохранён.
	ErrOrderInvariant = errors.New("order invariant violated")
	// ErrDuplicate — запись с таким идентификатором уже существует.
	ErrDuplicate = errors.New("duplicate record")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrIdempotencyKeyRequired — отсутствует idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — отсутствует хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// FieldProblem описывает одно замечание к полю входных данных.
type FieldProblem struct {
	Field   string
	Message string
	Err     error
}

// ValidationError собирает все замечания к входным данным.
type ValidationError struct {
	Problems []FieldProblem
}

// NewValidationError создаёт ошибку с одним замечанием.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add добавляет замечание к полю.
func (e *ValidationError) Add(field, message string) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Message: message})
}

// AddErr добавляет замечание с исходной ошибкой (например ErrInvalidAmount).
func (e *ValidationError) AddErr(field string, err error) {
	if err == nil {
		return
	}
	e.Problems = append(e.Problems, FieldProblem{Field: field, Message: err.Error(), Err: err})
}

// Empty сообщает, что замечаний нет.
func (e *ValidationError) Empty() bool { return e == nil || len(e.Problems) == 0 }

// OrNil возвращает nil, если замечаний нет.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap позволяет проверять как ErrValidation, так и исходные причины.
func (e *ValidationError) Unwrap() []error {
	errs := []error{ErrValidation}
	for _, p := range e.Problems {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errs
}

// Сущности для NotFoundError.
const (
	EntityOrder       = "order"
	EntityVehicle     = "vehicle"
	EntityOil         = "oil"
	EntityPart        = "part"
	EntityCatalogItem = "catalog item"
)

// NotFoundError уточняет, какая именно сущность не найдена.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFound создаёт ошибку отсутствующей сущности.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientStockError указывает позицию и нехватку при резервировании.
type InsufficientStockError struct {
	ItemID    string
	Requested Quantity
	Available Quantity
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %s, available %s",
		e.ItemID, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Shortfall возвращает, сколько не хватает до запрошенного количества.
func (e *InsufficientStockError) Shortfall() Quantity {
	return e.Requested.Sub(e.Available)
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConcurrentModification проверяет, является ли ошибка конфликтом версий.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsValidation проверяет, является ли ошибка ошибкой входных данных.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStorageUnavailable проверяет, что хранилище недоступно.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// AsInsufficientStock извлекает детали нехватки остатка.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr, true
	}
	return nil, false
}

// IsIdempotencyConflict проверяет конфликт по idempotency-key.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
