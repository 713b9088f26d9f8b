package coordinator

// State is a checkout state. A run moves forward through them in the
// order below; any failure after OrderCreated ends in StateAborted once the
// completed steps have been compensated.
type State string

const (
	StateValidating      State = "VALIDATING"
	StatePricing         State = "PRICING"
	StateOrderCreated    State = "ORDER_CREATED"
	StatePaymentRecorded State = "PAYMENT_RECORDED"
	StateStockCommitted  State = "STOCK_COMMITTED"
	StateItemsRecorded   State = "ITEMS_RECORDED"
	StateCartCleared     State = "CART_CLEARED"
	StateDone            State = "DONE"
	StateAborted         State = "ABORTED"
)

func (s State) String() string {
	return string(s)
}
