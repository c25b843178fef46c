package lifecycle

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// Границы входных данных заказа.
var (
	maxOilLitres    = decimal.NewFromInt(50)
	maxPartQuantity = decimal.NewFromInt(999)
	maxPercent      = decimal.NewFromInt(100)
)

// PartInput — запрошенная запчасть. Цена не передаётся: она берётся из каталога.
type PartInput struct {
	PartID   string          `json:"part_id" validate:"required,max=64"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderInput — содержимое заказа, общее для создания и редактирования.
type OrderInput struct {
	VehicleID           string          `json:"vehicle_id" validate:"required,max=64"`
	OilID               string          `json:"oil_id" validate:"required,max=64"`
	OilLitres           decimal.Decimal `json:"oil_litres"`
	Parts               []PartInput     `json:"parts" validate:"max=50,dive"`
	ServiceFee          decimal.Decimal `json:"service_fee"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	DiscountReason      string          `json:"discount_reason" validate:"max=200"`
	OdometerAtService   int64           `json:"odometer_at_service" validate:"gte=0"`
	ServiceDate         time.Time       `json:"service_date"`
	NextServiceOdometer *int64          `json:"next_service_odometer" validate:"omitempty,gte=0"`
	NextServiceDate     *time.Time      `json:"next_service_date"`
	Notes               string          `json:"notes" validate:"max=2000"`
}

// CreateOrderCommand создаёт заказ. OrderID можно задать заранее, иначе он генерируется.
type CreateOrderCommand struct {
	OrderID string
	Input   OrderInput
}

// UpdateOrderCommand заменяет содержимое заказа целиком.
type UpdateOrderCommand struct {
	OrderID         string
	ExpectedVersion int64
	Input           OrderInput
}

// VoidOrderCommand аннулирует заказ.
type VoidOrderCommand struct {
	OrderID         string
	ExpectedVersion int64
	Reason          string
}

// parsedInput — OrderInput после проверки формы, с деньгами в минорных единицах.
type parsedInput struct {
	OrderInput
	serviceFee     domain.Money
	discountAmount domain.Money
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseInput проверяет форму заказа без обращения к хранилищу.
func (s *Service) parseInput(in OrderInput, now time.Time) (parsedInput, error) {
	today := dateOf(now, s.location)
	problems := &domain.ValidationError{}
	collectStructErrors(problems, s.validate.Struct(in))

	if !in.OilLitres.IsPositive() || in.OilLitres.GreaterThan(maxOilLitres) {
		problems.Add("oil_litres", fmt.Sprintf("must be greater than 0 and at most %s", maxOilLitres))
	}
	for i, part := range in.Parts {
		if !part.Quantity.IsPositive() || part.Quantity.GreaterThan(maxPartQuantity) {
			problems.Add(fmt.Sprintf("parts[%d].quantity", i), fmt.Sprintf("must be greater than 0 and at most %s", maxPartQuantity))
		}
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(maxPercent) {
		problems.AddErr("discount_percent", fmt.Errorf("%w: must be between 0 and 100", domain.ErrInvalidDiscount))
	}

	fee, err := domain.MoneyFromDecimal(in.ServiceFee)
	problems.AddErr("service_fee", err)
	discount, err := domain.MoneyFromDecimal(in.DiscountAmount)
	problems.AddErr("discount_amount", err)

	out := parsedInput{OrderInput: in, serviceFee: fee, discountAmount: discount}
	if in.ServiceDate.IsZero() {
		problems.Add("service_date", "is required")
	} else {
		out.ServiceDate = dateOf(in.ServiceDate, s.location)
		if out.ServiceDate.After(today) {
			problems.Add("service_date", "must not be in the future")
		}
	}
	if in.NextServiceOdometer != nil && *in.NextServiceOdometer <= in.OdometerAtService {
		problems.Add("next_service_odometer", "must be greater than odometer_at_service")
	}
	if in.NextServiceDate != nil {
		next := dateOf(*in.NextServiceDate, s.location)
		out.NextServiceDate = &next
		if !in.ServiceDate.IsZero() && !next.After(out.ServiceDate) {
			problems.Add("next_service_date", "must be after service_date")
		}
	}

	return out, problems.OrNil()
}

func validateTarget(orderID string, expectedVersion int64) *domain.ValidationError {
	problems := &domain.ValidationError{}
	if strings.TrimSpace(orderID) == "" {
		problems.Add("order_id", "is required")
	}
	if expectedVersion < 1 {
		problems.Add("expected_version", "must be at least 1")
	}
	return problems
}

func collectStructErrors(problems *domain.ValidationError, err error) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		problems.AddErr("input", err)
		return
	}
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		problems.Add(field, describeTag(fe))
	}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// dateOf возвращает календарную дату момента t в часовом поясе loc как полночь UTC.
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
