package inventoryservice

import (
	"fmt"
	"strings"
)

// InsufficientStockError lists every product that cannot cover its line.
type InsufficientStockError struct {
	ProductIDs []int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for products [%s]", joinIDs(e.ProductIDs))
}

// StockCommitFailedError means the stock was there when validated but a
// concurrent checkout consumed it before the conditional decrement ran.
type StockCommitFailedError struct {
	ProductIDs []int64
	Err        error
}

func (e *StockCommitFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stock commit failed for products [%s]: %v", joinIDs(e.ProductIDs), e.Err)
	}
	return fmt.Sprintf("stock commit failed for products [%s]", joinIDs(e.ProductIDs))
}

func (e *StockCommitFailedError) Unwrap() error {
	return e.Err
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
