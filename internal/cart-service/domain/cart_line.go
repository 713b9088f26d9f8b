package domain

// CartLine is one (product, quantity) pair of a user's in-progress cart.
type CartLine struct {
	UserID    int64
	ProductID int64
	Quantity  int
}
