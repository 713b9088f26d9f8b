package domain

// ProductView is what an order line shows about its product. A product can
// be removed from the catalog after it was ordered, so a line resolves to
// either AvailableProduct or UnavailableProduct.
type ProductView interface {
	productView()
	OriginalID() int64
}

type AvailableProduct struct {
	ID      int64
	Name    string
	Image   string
	StoreID int64
}

type UnavailableProduct struct {
	ID int64
}

func (AvailableProduct) productView()   {}
func (UnavailableProduct) productView() {}

func (p AvailableProduct) OriginalID() int64   { return p.ID }
func (p UnavailableProduct) OriginalID() int64 { return p.ID }
