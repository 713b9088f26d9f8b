package sqlstore

import (
	cartservice "github.com/jcmexdev/quitq-checkout/internal/cart-service"
	deliveryservice "github.com/jcmexdev/quitq-checkout/internal/delivery-service/app"
	inventoryservice "github.com/jcmexdev/quitq-checkout/internal/inventory-service"
	orderapp "github.com/jcmexdev/quitq-checkout/internal/order-service/app"
	paymentservice "github.com/jcmexdev/quitq-checkout/internal/payment-service/app"
)

var (
	_ cartservice.Store                = (*Store)(nil)
	_ inventoryservice.Catalog         = (*Store)(nil)
	_ orderapp.Repository              = (*Store)(nil)
	_ orderapp.Catalog                 = (*Store)(nil)
	_ paymentservice.Repository        = (*Store)(nil)
	_ deliveryservice.TicketRepository = (*Store)(nil)
)
