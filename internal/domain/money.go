package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale — число знаков после запятой у денежных сумм (сентаво).
	MoneyScale int32 = 2
	// LitresScale — точность объёма масла в литрах.
	LitresScale int32 = 2
	// UnitScale — точность штучных позиций.
	UnitScale int32 = 0
	// FractionalScale — точность позиций с дробной единицей измерения (литры, килограммы, метры).
	FractionalScale int32 = 2
)

// MaxAmount — верхняя граница одной денежной суммы: 99 999 999.99.
const MaxAmount Money = 9_999_999_999

var (
	hundred      = decimal.NewFromInt(100)
	maxMinorUnit = decimal.NewFromInt(math.MaxInt64)
	minMinorUnit = decimal.NewFromInt(math.MinInt64)
)

// Money хранит денежную сумму в минимальных единицах (сентаво).
// Двоичные float в расчётах не участвуют.
type Money int64

// NewMoney создаёт сумму из минимальных единиц.
func NewMoney(minor int64) (Money, error) {
	if minor < 0 {
		return 0, fmt.Errorf("%w: money must be non-negative, got %d minor units", ErrInvalidAmount, minor)
	}
	if Money(minor) > MaxAmount {
		return 0, fmt.Errorf("%w: money must not exceed %s, got %d minor units", ErrInvalidAmount, MaxAmount, minor)
	}
	return Money(minor), nil
}

// MoneyFromDecimal переводит десятичное значение в сентаво.
// Допустимы значения от нуля до MaxAmount с точностью не выше сентаво.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: money must be non-negative, got %s", ErrInvalidAmount, d.String())
	}
	if d.GreaterThan(MaxAmount.Decimal()) {
		return 0, fmt.Errorf("%w: money must not exceed %s, got %s", ErrInvalidAmount, MaxAmount, d.String())
	}
	if !d.Equal(d.Truncate(MoneyScale)) {
		return 0, fmt.Errorf("%w: money %s has more than %d decimal places", ErrInvalidAmount, d.String(), MoneyScale)
	}
	return minorUnits(d)
}

// ParseMoney разбирает строку вида "123.45".
func ParseMoney(raw string) (Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty money value", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, raw)
	}
	return MoneyFromDecimal(d)
}

// Minor возвращает сумму в сентаво.
func (m Money) Minor() int64 { return int64(m) }

// Decimal возвращает сумму в основных единицах валюты.
func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -MoneyScale) }

func (m Money) String() string { return m.Decimal().StringFixed(MoneyScale) }

// IsZero сообщает, равна ли сумма нулю.
func (m Money) IsZero() bool { return m == 0 }

// Add складывает суммы.
func (m Money) Add(other Money) Money { return m + other }

// AddChecked складывает суммы и возвращает ErrInvalidAmount при переполнении int64.
func (m Money) AddChecked(other Money) (Money, error) {
	if (other > 0 && m > math.MaxInt64-other) || (other < 0 && m < math.MinInt64-other) {
		return 0, fmt.Errorf("%w: %s + %s overflows", ErrInvalidAmount, m, other)
	}
	return m + other, nil
}

// Sub вычитает сумму; результат может быть отрицательным, ограничение снизу делает вызывающий код.
func (m Money) Sub(other Money) Money { return m - other }

// MulQuantity умножает цену за единицу на количество с округлением half-up до сентаво.
func (m Money) MulQuantity(q Quantity) (Money, error) {
	return minorUnits(m.Decimal().Mul(q.Decimal()).Round(MoneyScale))
}

// Percent возвращает percent% от суммы с округлением half-up до сентаво.
func (m Money) Percent(percent decimal.Decimal) (Money, error) {
	return minorUnits(m.Decimal().Mul(percent).DivRound(hundred, MoneyScale))
}

// DivQuantity вычисляет цену за единицу из итоговой суммы с округлением half-up.
func (m Money) DivQuantity(q Quantity) (Money, error) {
	if !q.IsPositive() {
		return 0, fmt.Errorf("%w: divisor quantity must be positive, got %s", ErrInvalidAmount, q.String())
	}
	return minorUnits(m.Decimal().DivRound(q.Decimal(), MoneyScale))
}

// MaxMoney возвращает большую из двух сумм.
func MaxMoney(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}

// minorUnits переводит уже округлённое до сентаво значение в Money.
// Значения вне диапазона int64 отклоняются.
func minorUnits(d decimal.Decimal) (Money, error) {
	minor := d.Shift(MoneyScale)
	if minor.GreaterThan(maxMinorUnit) || minor.LessThan(minMinorUnit) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Money(minor.IntPart()), nil
}

// Quantity — количество с фиксированной точностью (литры, штуки).
type Quantity struct {
	value decimal.Decimal
	scale int32
}

// NewQuantity создаёт неотрицательное количество с заданной точностью.
func NewQuantity(value decimal.Decimal, scale int32) (Quantity, error) {
	if scale < 0 {
		return Quantity{}, fmt.Errorf("%w: negative scale %d", ErrInvalidAmount, scale)
	}
	if value.IsNegative() {
		return Quantity{}, fmt.Errorf("%w: quantity must be non-negative, got %s", ErrInvalidAmount, value.String())
	}
	if !value.Equal(value.Truncate(scale)) {
		return Quantity{}, fmt.Errorf("%w: quantity %s has more than %d decimal places", ErrInvalidAmount, value.String(), scale)
	}
	return Quantity{value: value, scale: scale}, nil
}

// ParseQuantity разбирает строковое количество с заданной точностью.
func ParseQuantity(raw string, scale int32) (Quantity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Quantity{}, fmt.Errorf("%w: empty quantity value", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, raw)
	}
	return NewQuantity(d, scale)
}

// ZeroQuantity возвращает ноль с заданной точностью.
func ZeroQuantity(scale int32) Quantity {
	return Quantity{value: decimal.Zero, scale: scale}
}

// Decimal возвращает значение количества.
func (q Quantity) Decimal() decimal.Decimal { return q.value }

// Scale возвращает точность количества.
func (q Quantity) Scale() int32 { return q.scale }

// WithScale переводит количество на другую точность без потери значащих знаков.
func (q Quantity) WithScale(scale int32) (Quantity, error) {
	if scale < 0 {
		return Quantity{}, fmt.Errorf("%w: negative scale %d", ErrInvalidAmount, scale)
	}
	if !q.value.Equal(q.value.Truncate(scale)) {
		return Quantity{}, fmt.Errorf("%w: quantity %s has more than %d decimal places", ErrInvalidAmount, q.value.String(), scale)
	}
	return Quantity{value: q.value, scale: scale}, nil
}

// Add складывает количества. Точность результата равна большей из двух.
func (q Quantity) Add(other Quantity) Quantity {
	return Quantity{value: q.value.Add(other.value), scale: maxScale(q.scale, other.scale)}
}

// Sub вычитает количество. Результат может быть отрицательной дельтой.
func (q Quantity) Sub(other Quantity) Quantity {
	return Quantity{value: q.value.Sub(other.value), scale: maxScale(q.scale, other.scale)}
}

// Neg меняет знак количества.
func (q Quantity) Neg() Quantity {
	return Quantity{value: q.value.Neg(), scale: q.scale}
}

// Cmp сравнивает количества точно: -1, 0 или 1.
func (q Quantity) Cmp(other Quantity) int { return q.value.Cmp(other.value) }

// Equal сравнивает значения без учёта точности.
func (q Quantity) Equal(other Quantity) bool { return q.value.Equal(other.value) }

func (q Quantity) IsZero() bool     { return q.value.IsZero() }
func (q Quantity) IsPositive() bool { return q.value.IsPositive() }
func (q Quantity) IsNegative() bool { return q.value.IsNegative() }

func (q Quantity) String() string { return q.value.StringFixed(q.scale) }

func maxScale(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
