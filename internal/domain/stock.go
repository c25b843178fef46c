package domain

import (
	"sort"
	"time"
)

// AdjustmentReason объясняет, почему изменился остаток.
type AdjustmentReason string

const (
	// AdjustmentOrderCreate — списание при создании заказа.
	AdjustmentOrderCreate AdjustmentReason = "order-create"
	// AdjustmentOrderReverse — возврат при аннулировании заказа.
	AdjustmentOrderReverse AdjustmentReason = "order-reverse"
	// AdjustmentOrderUpdateDelta — разница между версиями заказа при редактировании.
	AdjustmentOrderUpdateDelta AdjustmentReason = "order-update-delta"
	// AdjustmentRestock — приход товара на склад.
	AdjustmentRestock AdjustmentReason = "restock"
)

// StockLine — количество позиции каталога, которое заказ потребляет.
type StockLine struct {
	ItemID   string
	Quantity Quantity
}

// StockAdjustment — неизменяемая запись складского журнала.
type StockAdjustment struct {
	ID       string
	ItemID   string
	Delta    Quantity
	Balance  Quantity
	Reason   AdjustmentReason
	OrderID  string
	Note     string
	Occurred time.Time
}

// AggregateStockLines суммирует количества по позициям и сортирует по ItemID.
// Сортировка задаёт единый порядок блокировок.
func AggregateStockLines(lines []StockLine) []StockLine {
	byItem := make(map[string]Quantity, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		current, ok := byItem[line.ItemID]
		if !ok {
			order = append(order, line.ItemID)
			byItem[line.ItemID] = line.Quantity
			continue
		}
		byItem[line.ItemID] = current.Add(line.Quantity)
	}

	sort.Strings(order)
	result := make([]StockLine, 0, len(order))
	for _, id := range order {
		result = append(result, StockLine{ItemID: id, Quantity: byItem[id]})
	}
	return result
}

// StockDeltas вычисляет next - previous по каждой позиции.
// Положительная дельта означает дополнительное списание, отрицательная означает возврат.
// Позиции с нулевой дельтой опускаются, результат отсортирован по ItemID.
func StockDeltas(previous, next []StockLine) []StockLine {
	prev := AggregateStockLines(previous)
	nxt := AggregateStockLines(next)

	byItem := make(map[string]Quantity, len(prev)+len(nxt))
	for _, line := range nxt {
		byItem[line.ItemID] = line.Quantity
	}
	for _, line := range prev {
		current, ok := byItem[line.ItemID]
		if !ok {
			byItem[line.ItemID] = line.Quantity.Neg()
			continue
		}
		byItem[line.ItemID] = current.Sub(line.Quantity)
	}

	ids := make([]string, 0, len(byItem))
	for id, delta := range byItem {
		if delta.IsZero() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]StockLine, 0, len(ids))
	for _, id := range ids {
		result = append(result, StockLine{ItemID: id, Quantity: byItem[id]})
	}
	return result
}
