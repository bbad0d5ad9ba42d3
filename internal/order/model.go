package order

import "time"

type PaymentMethod string

const (
	PaymentMethodCOD   PaymentMethod = "COD"
	PaymentMethodVNPay PaymentMethod = "VNPAY"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Customer is the contact snapshot copied onto the order at checkout time.
// It is never re-read from the user profile afterwards.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Item is a denormalized order line. Name, image and price are captured at
// order time so historical orders survive later catalog edits.
type Item struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage"`
	Price        int64  `json:"price"`
	Quantity     int    `json:"quantity"`
}

func (it Item) Subtotal() int64 { return it.Price * int64(it.Quantity) }

type Order struct {
	ID            string        `json:"orderId"`
	Reference     string        `json:"reference"`
	UserID        string        `json:"userId"`
	Customer      Customer      `json:"customer"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Status        Status        `json:"status"`
	TotalAmount   int64         `json:"totalAmount"`

	VoucherCode     string `json:"voucherCode,omitempty"`
	VoucherDiscount int64  `json:"voucherDiscount,omitempty"`
	VoucherType     string `json:"voucherType,omitempty"`

	Notes string `json:"notes,omitempty"`

	GatewayTxnNo    string `json:"gatewayTxnNo,omitempty"`
	GatewayBankCode string `json:"gatewayBankCode,omitempty"`
	GatewayRespCode string `json:"gatewayRespCode,omitempty"`

	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
}
