package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type StockItem struct {
	ProductID int64
	Quantity  int
}

type ProductStatus string

const (
	ProductInStock    ProductStatus = "in_stock"
	ProductOutOfStock ProductStatus = "out_of_stock"
)

// Product is the slice of a catalog product the checkout cares about.
type Product struct {
	ID            int64
	StoreID       int64
	Name          string
	Image         string
	Price         decimal.Decimal
	StockQuantity int
	Status        ProductStatus
}
