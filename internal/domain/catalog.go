package domain

import "time"

// CatalogKind различает масла и запчасти в общем складском каталоге.
type CatalogKind string

const (
	// CatalogKindOil — моторное масло, учитывается в литрах.
	CatalogKindOil CatalogKind = "oil"
	// CatalogKindPart — запчасть или расходник (фильтры, прокладки и т.п.).
	CatalogKindPart CatalogKind = "part"
)

// Valid проверяет, что вид позиции поддерживается.
func (k CatalogKind) Valid() bool {
	return k == CatalogKindOil || k == CatalogKindPart
}

// CatalogItem — позиция склада. StockQuantity меняет только складской журнал.
type CatalogItem struct {
	ID   string
	Kind CatalogKind
	Name string
	// Unit — единица измерения в свободной форме ("L", "un", "kg").
	Unit string
	// FractionalUnit разрешает дробные количества для запчастей.
	FractionalUnit bool
	UnitPrice      Money
	UnitCost       Money
	StockQuantity  Quantity
	// ReorderThreshold — порог, при достижении которого позиция считается заканчивающейся.
	ReorderThreshold Quantity
	Active           bool
	UpdatedAt        time.Time
}

// QuantityScale возвращает точность количества для позиции.
func (c CatalogItem) QuantityScale() int32 {
	if c.Kind == CatalogKindOil {
		return LitresScale
	}
	if c.FractionalUnit {
		return FractionalScale
	}
	return UnitScale
}

// LowStock сообщает, что остаток не выше порога дозаказа.
func (c CatalogItem) LowStock() bool {
	return c.StockQuantity.Cmp(c.ReorderThreshold) <= 0
}

// Vehicle — справочные данные автомобиля, нужные для заказа.
type Vehicle struct {
	ID       string
	ClientID string
	Plate    string
	Model    string
	// Odometer — текущий пробег в километрах.
	Odometer  int64
	UpdatedAt time.Time
}
