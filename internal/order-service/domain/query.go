package domain

// OrderQuery filters ledger reads. Empty fields do not filter.
type OrderQuery struct {
	IDs        []string
	UserIDs    []int64
	ProductIDs []int64
}
