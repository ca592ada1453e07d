package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
)

// OrderBuilder provides fluent API for building test orders.
type OrderBuilder struct {
	order *domain.Order
}

// NewOrder creates a pending order for KES 1,000 with one line.
func NewOrder() *OrderBuilder {
	now := time.Now()
	id := uuid.NewString()
	line := domain.NewOrderLine(uuid.NewString(), "Pilau", 2, 500)
	line.ID = uuid.NewString()
	line.OrderID = id
	line.CreatedAt = now
	return &OrderBuilder{
		order: &domain.Order{
			ID:            id,
			OrderNumber:   "MO-" + now.Format("060102") + "-0001",
			CustomerName:  "Amina Wanjiru",
			CustomerPhone: "254712345678",
			TotalAmount:   1000,
			PaymentStatus: domain.PaymentStatusPending,
			OrderStatus:   domain.OrderStatusNew,
			Items:         []domain.OrderLine{line},
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
}

func (b *OrderBuilder) WithID(id string) *OrderBuilder {
	b.order.ID = id
	for i := range b.order.Items {
		b.order.Items[i].OrderID = id
	}
	return b
}

func (b *OrderBuilder) WithPhone(phone string) *OrderBuilder {
	b.order.CustomerPhone = phone
	return b
}

func (b *OrderBuilder) WithTotal(amount int64) *OrderBuilder {
	b.order.TotalAmount = amount
	return b
}

func (b *OrderBuilder) WithPaymentStatus(status domain.PaymentStatus) *OrderBuilder {
	b.order.PaymentStatus = status
	return b
}

func (b *OrderBuilder) WithOrderStatus(status domain.OrderStatus) *OrderBuilder {
	b.order.OrderStatus = status
	return b
}

func (b *OrderBuilder) WithCheckoutID(id string) *OrderBuilder {
	b.order.CheckoutID = &id
	return b
}

func (b *OrderBuilder) WithReceipt(receipt string) *OrderBuilder {
	b.order.Receipt = &receipt
	return b
}

func (b *OrderBuilder) WithCreatedAt(t time.Time) *OrderBuilder {
	b.order.CreatedAt = t
	b.order.UpdatedAt = t
	return b
}

func (b *OrderBuilder) Build() *domain.Order {
	return b.order
}
