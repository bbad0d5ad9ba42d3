package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/useristn/Toy-Store-Web-sub000/internal/vnpay"
)

func TestReturnFormatter(t *testing.T) {
	t.Run("verified success redirect", func(t *testing.T) {
		f := NewReturnFormatter(fakeVerifier{ok: true})

		view, err := f.Format(notification("00"))
		require.NoError(t, err)
		require.Equal(t, "ref123", view.Reference)
		require.Equal(t, int64(460_000), view.Amount)
		require.True(t, view.Success)
		require.Equal(t, "14400996", view.TransactionNo)
		require.Equal(t, "NCB", view.BankCode)
	})

	t.Run("verified failure redirect", func(t *testing.T) {
		f := NewReturnFormatter(fakeVerifier{ok: true})

		view, err := f.Format(notification("24"))
		require.NoError(t, err)
		require.False(t, view.Success)
		require.Equal(t, "24", view.ResponseCode)
	})

	t.Run("forged redirect is refused", func(t *testing.T) {
		f := NewReturnFormatter(fakeVerifier{ok: false})

		_, err := f.Format(notification("00"))
		require.ErrorIs(t, err, ErrUntrustedReturn)
	})

	t.Run("verified but malformed amount is refused", func(t *testing.T) {
		f := NewReturnFormatter(fakeVerifier{ok: true})

		params := notification("00")
		params[vnpay.ParamAmount] = "not-a-number"

		_, err := f.Format(params)
		require.ErrorIs(t, err, ErrUntrustedReturn)
	})
}
