// Package pricing считает стоимость сервисного заказа. Пакет не делает I/O.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

var maxDiscountPercent = decimal.NewFromInt(100)

// Line — количество и зафиксированная цена за единицу.
type Line struct {
	Quantity  domain.Quantity
	UnitPrice domain.Money
}

// Input — всё, что нужно для расчёта: масло, запчасти, работа и скидки.
type Input struct {
	Oil             Line
	Parts           []Line
	ServiceFee      domain.Money
	DiscountPercent decimal.Decimal
	DiscountAmount  domain.Money
}

// LineTotal возвращает стоимость позиции, округлённую half-up до сентаво.
func LineTotal(line Line) (domain.Money, error) {
	return line.UnitPrice.MulQuantity(line.Quantity)
}

// Calculate считает итоги заказа.
//
// Скидки применяются к сумме товаров и работы: сначала процентная, затем фиксированная.
// Итог не опускается ниже нуля; слишком большая скидка обрезается, а не отклоняется.
func Calculate(in Input) (domain.Totals, error) {
	if err := validate(in); err != nil {
		return domain.Totals{}, err
	}

	oilSubtotal, err := LineTotal(in.Oil)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("oil: %w", err)
	}

	var partsSubtotal domain.Money
	for i, part := range in.Parts {
		lineTotal, err := LineTotal(part)
		if err == nil {
			partsSubtotal, err = partsSubtotal.AddChecked(lineTotal)
		}
		if err != nil {
			return domain.Totals{}, fmt.Errorf("part[%d]: %w", i, err)
		}
	}

	productsSubtotal, err := oilSubtotal.AddChecked(partsSubtotal)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("products subtotal: %w", err)
	}
	grossTotal, err := productsSubtotal.AddChecked(in.ServiceFee)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("gross total: %w", err)
	}
	percentValue, err := grossTotal.Percent(in.DiscountPercent)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("percent discount: %w", err)
	}
	total := domain.MaxMoney(0, grossTotal.Sub(percentValue).Sub(in.DiscountAmount))

	return domain.Totals{
		OilSubtotal:          oilSubtotal,
		PartsSubtotal:        partsSubtotal,
		ProductsSubtotal:     productsSubtotal,
		ServiceFee:           in.ServiceFee,
		GrossTotal:           grossTotal,
		PercentDiscountValue: percentValue,
		DiscountAmount:       in.DiscountAmount,
		Total:                total,
	}, nil
}

func validate(in Input) error {
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(maxDiscountPercent) {
		return fmt.Errorf("%w: percent %s is outside [0, 100]", domain.ErrInvalidDiscount, in.DiscountPercent.String())
	}
	if err := validateAmount("discount amount", in.DiscountAmount); err != nil {
		return err
	}
	if err := validateAmount("service fee", in.ServiceFee); err != nil {
		return err
	}
	if err := validateLine("oil", in.Oil); err != nil {
		return err
	}
	for i, part := range in.Parts {
		if err := validateLine(fmt.Sprintf("part[%d]", i), part); err != nil {
			return err
		}
	}
	return nil
}

func validateLine(name string, line Line) error {
	if line.Quantity.IsNegative() {
		return fmt.Errorf("%w: %s quantity must be non-negative", domain.ErrInvalidAmount, name)
	}
	return validateAmount(name+" unit price", line.UnitPrice)
}

func validateAmount(name string, amount domain.Money) error {
	if amount < 0 || amount > domain.MaxAmount {
		return fmt.Errorf("%w: %s must be between 0 and %s", domain.ErrInvalidAmount, name, domain.MaxAmount)
	}
	return nil
}
