package handlers

import (
	"context"
)

// InventoryStore sets absolute stock quantities. Writes are last-write-wins;
// there is no optimistic lock at this level.
type InventoryStore interface {
	SetQuantity(ctx context.Context, productID string, quantity int64) error
}

// CourierService assigns a courier to an order.
type CourierService interface {
	Assign(ctx context.Context, orderID, courierID string) error
}

// NewInventoryHandler returns the handler for update_inventory actions.
// Required config: product_id, quantity.
func NewInventoryHandler(store InventoryStore) Handler {
	return HandlerFunc(func(ctx context.Context, config, trigger map[string]any) (any, error) {
		productID, err := stringField("update_inventory", config, "product_id")
		if err != nil {
			return nil, err
		}
		quantity, err := intField("update_inventory", config, "quantity")
		if err != nil {
			return nil, err
		}

		if err := store.SetQuantity(ctx, productID, quantity); err != nil {
			return nil, err
		}
		return map[string]any{"product_id": productID, "quantity": quantity}, nil
	})
}

// NewCourierHandler returns the handler for assign_courier actions.
// Required config: order_id, courier_id.
func NewCourierHandler(svc CourierService) Handler {
	return HandlerFunc(func(ctx context.Context, config, trigger map[string]any) (any, error) {
		orderID, err := stringField("assign_courier", config, "order_id")
		if err != nil {
			return nil, err
		}
		courierID, err := stringField("assign_courier", config, "courier_id")
		if err != nil {
			return nil, err
		}

		if err := svc.Assign(ctx, orderID, courierID); err != nil {
			return nil, err
		}
		return map[string]any{"order_id": orderID, "courier_id": courierID}, nil
	})
}
