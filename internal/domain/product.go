package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockOperation описывает режим административной корректировки остатков.
type StockOperation string

const (
	// StockOperationSet устанавливает абсолютное значение stock.
	StockOperationSet StockOperation = "set"
	// StockOperationAdd прибавляет количество к stock.
	StockOperationAdd StockOperation = "add"
	// StockOperationSubtract вычитает количество из stock.
	StockOperationSubtract StockOperation = "subtract"
)

// Valid проверяет, что операция поддерживается.
func (op StockOperation) Valid() bool {
	switch op {
	case StockOperationSet, StockOperationAdd, StockOperationSubtract:
		return true
	default:
		return false
	}
}

// Product — товар на складе. Владелец записи: inventory-service.
//
// Инвариант консистентности: reserved <= stock и reserved >= 0 в каждом
// закоммиченном состоянии. Available никогда не хранится — всегда вычисляется.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	// Price — цена за единицу, фиксированная точность 2 знака.
	Price decimal.Decimal
	// Stock — физический остаток на складе.
	Stock int64
	// Reserved — удержано под незавершённые заказы, но не продано.
	Reserved int64
	// Sold — монотонный счётчик проданных единиц.
	Sold      int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available возвращает доступное к резервированию количество.
func (p *Product) Available() int64 {
	return p.Stock - p.Reserved
}

// ValidateInvariants проверяет складские инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrProductPriceNegative)
	}
	if p.Stock < 0 || p.Reserved < 0 || p.Reserved > p.Stock {
		errs = append(errs, ErrStockInvariantViolated)
	}

	return errs
}

// LowStockThreshold — порог, ниже которого логируется предупреждение о дефиците.
const LowStockThreshold = 10
