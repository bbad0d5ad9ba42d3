package events

import "time"

// Queue names downstream consumers bind to.
const (
	OrderCreatedQueue       = "order.created"
	OrderPaidQueue          = "order.paid"
	OrderPaymentFailedQueue = "order.payment_failed"
	OrderCancelledQueue     = "order.cancelled"
)

type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type OrderCreated struct {
	EventType     string      `json:"eventType"`
	OrderID       string      `json:"orderId"`
	Reference     string      `json:"reference"`
	UserID        string      `json:"userId"`
	PaymentMethod string      `json:"paymentMethod"`
	TotalAmount   int64       `json:"totalAmount"`
	Items         []OrderItem `json:"items"`
	Timestamp     time.Time   `json:"timestamp"`
}

type OrderPaid struct {
	EventType   string    `json:"eventType"`
	OrderID     string    `json:"orderId"`
	UserID      string    `json:"userId"`
	TotalAmount int64     `json:"totalAmount"`
	Timestamp   time.Time `json:"timestamp"`
}

type OrderPaymentFailed struct {
	EventType    string    `json:"eventType"`
	OrderID      string    `json:"orderId"`
	UserID       string    `json:"userId"`
	ResponseCode string    `json:"responseCode"`
	Timestamp    time.Time `json:"timestamp"`
}

type OrderCancelled struct {
	EventType string    `json:"eventType"`
	OrderID   string    `json:"orderId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}
