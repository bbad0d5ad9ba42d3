package voucher

import "time"

type DiscountType string

const (
	TypePercentage   DiscountType = "PERCENTAGE"
	TypeFixedAmount  DiscountType = "FIXED_AMOUNT"
	TypeFreeShipping DiscountType = "FREE_SHIPPING"
)

type Voucher struct {
	ID            string       `json:"id"`
	Code          string       `json:"code"`
	Type          DiscountType `json:"discountType"`
	Value         int64        `json:"discountValue"`
	MaxDiscount   *int64       `json:"maxDiscount,omitempty"`
	MinOrderValue *int64       `json:"minOrderValue,omitempty"`
	TotalQuantity int          `json:"totalQuantity"`
	UsedQuantity  int          `json:"usedQuantity"`
	LimitPerUser  *int         `json:"limitPerUser,omitempty"`
	StartsAt      time.Time    `json:"startsAt"`
	EndsAt        time.Time    `json:"endsAt"`
	Active        bool         `json:"active"`
}

// Discount prices the voucher against an order subtotal. The result is a
// whole currency amount, never negative and never larger than the subtotal
// for amount-based types.
func (v *Voucher) Discount(subtotal int64) int64 {
	switch v.Type {
	case TypePercentage:
		// round half up to the nearest whole unit
		d := (subtotal*v.Value + 50) / 100
		if v.MaxDiscount != nil && d > *v.MaxDiscount {
			d = *v.MaxDiscount
		}
		return d
	case TypeFixedAmount:
		if v.Value > subtotal {
			return subtotal
		}
		return v.Value
	case TypeFreeShipping:
		// flat shipping-fee offset
		return v.Value
	default:
		return 0
	}
}

// Quote is the read-only pricing result used for live UI feedback.
type Quote struct {
	Code       string       `json:"code"`
	Type       DiscountType `json:"discountType"`
	Discount   int64        `json:"discount"`
	FinalTotal int64        `json:"finalTotal"`
}
