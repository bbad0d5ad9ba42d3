package voucher

import "testing"

func int64p(v int64) *int64 { return &v }

func TestDiscount(t *testing.T) {
	tests := map[string]struct {
		voucher  Voucher
		subtotal int64
		want     int64
	}{
		"percentage": {
			voucher:  Voucher{Type: TypePercentage, Value: 10},
			subtotal: 200_000,
			want:     20_000,
		},
		"percentage capped at max discount": {
			voucher:  Voucher{Type: TypePercentage, Value: 10, MaxDiscount: int64p(40_000)},
			subtotal: 500_000,
			want:     40_000,
		},
		"percentage under the cap": {
			voucher:  Voucher{Type: TypePercentage, Value: 10, MaxDiscount: int64p(40_000)},
			subtotal: 300_000,
			want:     30_000,
		},
		"percentage rounds half up": {
			voucher:  Voucher{Type: TypePercentage, Value: 15},
			subtotal: 3,
			want:     0, // 0.45 rounds down
		},
		"percentage rounds up over half": {
			voucher:  Voucher{Type: TypePercentage, Value: 25},
			subtotal: 2,
			want:     1, // 0.5 rounds up
		},
		"fixed amount": {
			voucher:  Voucher{Type: TypeFixedAmount, Value: 30_000},
			subtotal: 100_000,
			want:     30_000,
		},
		"fixed amount never exceeds subtotal": {
			voucher:  Voucher{Type: TypeFixedAmount, Value: 30_000},
			subtotal: 20_000,
			want:     20_000,
		},
		"free shipping flat offset": {
			voucher:  Voucher{Type: TypeFreeShipping, Value: 25_000},
			subtotal: 1_000_000,
			want:     25_000,
		},
		"unknown type discounts nothing": {
			voucher:  Voucher{Type: DiscountType("MYSTERY"), Value: 99},
			subtotal: 100_000,
			want:     0,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tc.voucher.Discount(tc.subtotal); got != tc.want {
				t.Fatalf("Discount(%d) = %d, want %d", tc.subtotal, got, tc.want)
			}
		})
	}
}
