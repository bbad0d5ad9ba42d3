package reconcile

import (
	"errors"

	"github.com/useristn/Toy-Store-Web-sub000/internal/vnpay"
)

// ErrUntrustedReturn marks a browser-redirect callback whose signature did
// not verify. The user can forge or replay this channel freely, so nothing
// unverified is ever shown, let alone persisted.
var ErrUntrustedReturn = errors.New("reconcile: return parameters failed verification")

// ReturnView is what the thank-you page renders. It is derived purely from
// the redirect parameters; the authoritative order state comes from the
// notification channel, which may not have arrived yet.
type ReturnView struct {
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Success       bool   `json:"success"`
	ResponseCode  string `json:"responseCode"`
	TransactionNo string `json:"transactionNo,omitempty"`
	BankCode      string `json:"bankCode,omitempty"`
}

// ReturnFormatter handles the display-only redirect channel. It deliberately
// has no access to storage: the type system is the guard against this
// channel ever mutating order state.
type ReturnFormatter struct {
	verifier Verifier
}

func NewReturnFormatter(verifier Verifier) *ReturnFormatter {
	return &ReturnFormatter{verifier: verifier}
}

func (f *ReturnFormatter) Format(params map[string]string) (*ReturnView, error) {
	if !f.verifier.Verify(params) {
		return nil, ErrUntrustedReturn
	}

	amount, err := vnpay.FromMinorUnits(params[vnpay.ParamAmount])
	if err != nil {
		return nil, ErrUntrustedReturn
	}

	respCode := params[vnpay.ParamResponseCode]
	return &ReturnView{
		Reference:     params[vnpay.ParamTxnRef],
		Amount:        amount,
		Success:       respCode == vnpay.ResponseCodeSuccess,
		ResponseCode:  respCode,
		TransactionNo: params[vnpay.ParamTransactionNo],
		BankCode:      params[vnpay.ParamBankCode],
	}, nil
}
