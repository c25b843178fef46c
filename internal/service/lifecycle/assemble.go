package lifecycle

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/pricing"
)

// assemble собирает содержимое заказа по каталогу и считает итоги.
//
// Для previous != nil позиции, которые уже были в заказе, сохраняют зафиксированную
// цену и идентификатор строки; новые позиции берут текущую цену каталога.
// Снятую с продажи позицию можно оставить в заказе, но нельзя добавить.
func (s *Service) assemble(ctx context.Context, tx domain.Tx, in parsedInput, previous *domain.ServiceOrder) (domain.ServiceOrder, error) {
	problems := &domain.ValidationError{}

	oil, err := tx.Catalog().GetOil(ctx, in.OilID)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	keepsOil := previous != nil && previous.OilID == oil.ID
	if !oil.Active && !keepsOil {
		problems.Add("oil_id", "oil is not available for sale")
	}
	litres, err := domain.NewQuantity(in.OilLitres, oil.QuantityScale())
	problems.AddErr("oil_litres", err)
	oilPrice := oil.UnitPrice
	if keepsOil {
		oilPrice = previous.OilUnitPrice
	}

	snapshots := newLineSnapshots(previous)
	lines := make([]domain.PartLine, 0, len(in.Parts))
	for i, input := range in.Parts {
		field := fmt.Sprintf("parts[%d]", i)
		part, err := tx.Catalog().GetPart(ctx, input.PartID)
		if err != nil {
			return domain.ServiceOrder{}, err
		}
		snapshot, known := snapshots.take(part.ID)
		if !part.Active && !known {
			problems.Add(field+".part_id", "part is not available for sale")
		}
		quantity, err := domain.NewQuantity(input.Quantity, part.QuantityScale())
		problems.AddErr(field+".quantity", err)

		line := domain.PartLine{
			ID:        snapshot.ID,
			PartID:    part.ID,
			PartName:  part.Name,
			Quantity:  quantity,
			UnitPrice: part.UnitPrice,
		}
		if known {
			line.UnitPrice = snapshot.UnitPrice
			line.PartName = snapshot.PartName
		}
		if line.ID == "" {
			line.ID = s.newID()
		}
		lines = append(lines, line)
	}
	if err := problems.OrNil(); err != nil {
		return domain.ServiceOrder{}, err
	}

	partLines := make([]pricing.Line, 0, len(lines))
	for i := range lines {
		pl := pricing.Line{Quantity: lines[i].Quantity, UnitPrice: lines[i].UnitPrice}
		if lines[i].LineTotal, err = pricing.LineTotal(pl); err != nil {
			problems.AddErr(fmt.Sprintf("parts[%d]", i), err)
		}
		partLines = append(partLines, pl)
	}
	if err := problems.OrNil(); err != nil {
		return domain.ServiceOrder{}, err
	}
	totals, err := pricing.Calculate(pricing.Input{
		Oil:             pricing.Line{Quantity: litres, UnitPrice: oilPrice},
		Parts:           partLines,
		ServiceFee:      in.serviceFee,
		DiscountPercent: in.DiscountPercent,
		DiscountAmount:  in.discountAmount,
	})
	if err != nil {
		problems.AddErr("pricing", err)
		return domain.ServiceOrder{}, problems
	}

	oilName := oil.Name
	if keepsOil && previous.OilName != "" {
		oilName = previous.OilName
	}
	return domain.ServiceOrder{
		VehicleID:           in.VehicleID,
		OilID:               oil.ID,
		OilName:             oilName,
		OilLitres:           litres,
		OilUnitPrice:        oilPrice,
		ServiceFee:          in.serviceFee,
		DiscountPercent:     in.DiscountPercent,
		DiscountAmount:      in.discountAmount,
		DiscountReason:      in.DiscountReason,
		OdometerAtService:   in.OdometerAtService,
		ServiceDate:         in.ServiceDate,
		NextServiceOdometer: in.NextServiceOdometer,
		NextServiceDate:     in.NextServiceDate,
		Notes:               in.Notes,
		Lines:               lines,
		Totals:              totals,
	}, nil
}

// lineSnapshots раздаёт строки прежней версии заказа по ID запчасти в исходном порядке.
type lineSnapshots map[string][]domain.PartLine

func newLineSnapshots(previous *domain.ServiceOrder) lineSnapshots {
	snapshots := make(lineSnapshots)
	if previous == nil {
		return snapshots
	}
	for _, line := range previous.Lines {
		snapshots[line.PartID] = append(snapshots[line.PartID], line)
	}
	return snapshots
}

// take возвращает прежнюю строку для запчасти. Когда строки закончились, повторно
// отдаётся последняя без ID: цена сохраняется, строка получает новый идентификатор.
func (l lineSnapshots) take(partID string) (domain.PartLine, bool) {
	lines, ok := l[partID]
	if !ok {
		return domain.PartLine{}, false
	}
	line := lines[0]
	if len(lines) > 1 {
		l[partID] = lines[1:]
	} else {
		spent := line
		spent.ID = ""
		l[partID] = []domain.PartLine{spent}
	}
	return line, true
}
