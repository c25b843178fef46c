package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// SeedFile — справочные данные мастерской в JSON.
type SeedFile struct {
	Vehicles []SeedVehicle     `json:"vehicles" validate:"dive"`
	Catalog  []SeedCatalogItem `json:"catalog" validate:"dive"`
}

// SeedVehicle — автомобиль клиента.
type SeedVehicle struct {
	ID       string `json:"id" validate:"required"`
	ClientID string `json:"client_id"`
	Plate    string `json:"plate"`
	Model    string `json:"model"`
	Odometer int64  `json:"odometer" validate:"gte=0"`
}

// SeedCatalogItem — позиция склада с начальным остатком.
type SeedCatalogItem struct {
	ID               string `json:"id" validate:"required"`
	Kind             string `json:"kind" validate:"required,oneof=oil part"`
	Name             string `json:"name" validate:"required"`
	Unit             string `json:"unit"`
	FractionalUnit   bool   `json:"fractional_unit"`
	UnitPrice        string `json:"unit_price" validate:"required"`
	UnitCost         string `json:"unit_cost"`
	Stock            string `json:"stock"`
	ReorderThreshold string `json:"reorder_threshold"`
	Active           *bool  `json:"active"`
}

// SeedResult — сколько записей загружено.
type SeedResult struct {
	Vehicles     int
	CatalogItems int
}

var seedValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadSeedFile читает файл и загружает справочные данные.
func LoadSeedFile(ctx context.Context, path string, writer domain.MasterDataWriter) (SeedResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedResult{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return SeedResult{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return ApplySeed(ctx, seed, writer)
}

// ApplySeed проверяет и записывает справочные данные.
// У уже существующих позиций остаток не меняется.
func ApplySeed(ctx context.Context, seed SeedFile, writer domain.MasterDataWriter) (SeedResult, error) {
	if err := seedValidator.StructCtx(ctx, seed); err != nil {
		return SeedResult{}, fmt.Errorf("invalid seed: %w", err)
	}

	items := make([]domain.CatalogItem, 0, len(seed.Catalog))
	var errs []error
	for _, raw := range seed.Catalog {
		item, err := raw.toDomain()
		if err != nil {
			errs = append(errs, fmt.Errorf("catalog item %s: %w", raw.ID, err))
			continue
		}
		items = append(items, item)
	}
	if err := errors.Join(errs...); err != nil {
		return SeedResult{}, err
	}

	var result SeedResult
	for _, v := range seed.Vehicles {
		vehicle := domain.Vehicle{
			ID:       strings.TrimSpace(v.ID),
			ClientID: v.ClientID,
			Plate:    v.Plate,
			Model:    v.Model,
			Odometer: v.Odometer,
		}
		if err := writer.UpsertVehicle(ctx, vehicle); err != nil {
			return result, fmt.Errorf("upsert vehicle %s: %w", vehicle.ID, err)
		}
		result.Vehicles++
	}
	for _, item := range items {
		if err := writer.UpsertCatalogItem(ctx, item); err != nil {
			return result, fmt.Errorf("upsert catalog item %s: %w", item.ID, err)
		}
		result.CatalogItems++
	}
	return result, nil
}

func (s SeedCatalogItem) toDomain() (domain.CatalogItem, error) {
	item := domain.CatalogItem{
		ID:             strings.TrimSpace(s.ID),
		Kind:           domain.CatalogKind(s.Kind),
		Name:           s.Name,
		Unit:           s.Unit,
		FractionalUnit: s.FractionalUnit,
		Active:         s.Active == nil || *s.Active,
	}
	scale := item.QuantityScale()

	var err error
	if item.UnitPrice, err = domain.ParseMoney(s.UnitPrice); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("unit_price: %w", err)
	}
	if item.UnitCost, err = domain.ParseMoney(orZero(s.UnitCost)); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("unit_cost: %w", err)
	}
	if item.StockQuantity, err = domain.ParseQuantity(orZero(s.Stock), scale); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("stock: %w", err)
	}
	if item.ReorderThreshold, err = domain.ParseQuantity(orZero(s.ReorderThreshold), scale); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("reorder_threshold: %w", err)
	}
	return item, nil
}

func orZero(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "0"
	}
	return raw
}
