package domain

import (
	"time"
)

// PaymentStatus is the payment state machine of an order.
// pending -> paid and pending -> failed are the only gateway-driven transitions;
// refunded is set manually by operations staff.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsValid reports whether s is a known payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether a gateway outcome has already been recorded
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// OrderStatus is the kitchen lifecycle, advanced by operations staff
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid reports whether s is a known order status
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusNew, OrderStatusPreparing, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is the record being paid for.
// TotalAmount is in whole shillings and is pushed to the gateway as-is.
type Order struct {
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	CustomerEmail   *string       `json:"customer_email,omitempty"`
	DeliveryAddress *string       `json:"delivery_address,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
	CheckoutID      *string       `json:"mpesa_checkout_id,omitempty"`
	Receipt         *string       `json:"mpesa_receipt,omitempty"`
	ID              string        `json:"id"`
	OrderNumber     string        `json:"order_number"`
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	OrderStatus     OrderStatus   `json:"order_status"`
	Items           []OrderLine   `json:"order_items,omitempty"`
	TotalAmount     int64         `json:"total_amount"`
}

// OrderLine is an immutable snapshot of a menu item at checkout time
type OrderLine struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	MenuItemID   string    `json:"menu_item_id"`
	MenuItemName string    `json:"menu_item_name"`
	Quantity     int32     `json:"quantity"`
	UnitPrice    int64     `json:"unit_price"`
	Subtotal     int64     `json:"subtotal"`
}

// NewOrderLine builds a line with its subtotal computed
func NewOrderLine(menuItemID, name string, quantity int32, unitPrice int64) OrderLine {
	return OrderLine{
		MenuItemID:   menuItemID,
		MenuItemName: name,
		Quantity:     quantity,
		UnitPrice:    unitPrice,
		Subtotal:     int64(quantity) * unitPrice,
	}
}

// SumSubtotals returns the total of all line subtotals
func SumSubtotals(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Subtotal
	}
	return total
}

// GetCheckoutID safely retrieves the gateway correlation id
func (o *Order) GetCheckoutID() string {
	if o.CheckoutID != nil {
		return *o.CheckoutID
	}
	return ""
}

// GetReceipt safely retrieves the gateway receipt reference
func (o *Order) GetReceipt() string {
	if o.Receipt != nil {
		return *o.Receipt
	}
	return ""
}

// CanAcceptPush reports whether a new push payment may be sent for this order.
// Failed orders may be retried; paid and refunded orders may not.
func (o *Order) CanAcceptPush() bool {
	return o.PaymentStatus == PaymentStatusPending || o.PaymentStatus == PaymentStatusFailed
}

// CanTransitionPayment reports whether the gateway may move the order to next.
// Re-applying the current terminal state is allowed so duplicate callbacks stay idempotent.
func (o *Order) CanTransitionPayment(next PaymentStatus) bool {
	if o.PaymentStatus == next {
		return true
	}
	return o.PaymentStatus == PaymentStatusPending &&
		(next == PaymentStatusPaid || next == PaymentStatusFailed)
}

// CanBeRefunded returns true if the order was paid and can be marked refunded
func (o *Order) CanBeRefunded() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// CanTransitionOrder reports whether staff may move the kitchen lifecycle to next.
// Completed and cancelled orders are closed.
func (o *Order) CanTransitionOrder(next OrderStatus) bool {
	if !next.IsValid() {
		return false
	}
	switch o.OrderStatus {
	case OrderStatusCompleted, OrderStatusCancelled:
		return o.OrderStatus == next
	}
	return true
}
