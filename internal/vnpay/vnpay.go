// Package vnpay builds outbound VNPay payment URLs and verifies inbound
// signed callbacks. Signatures are HMAC-SHA512 over the alphabetically
// sorted, URL-encoded parameter string; amounts travel in minor units
// (amount x 100) so no floating point ever touches the wire.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	Version = "2.1.0"

	CommandPay = "pay"

	CurrencyCode = "VND"

	LocaleVN = "vn"

	// ResponseCodeSuccess is the gateway's "payment succeeded" result code.
	// Any other vnp_ResponseCode on a verified callback is a failure.
	ResponseCodeSuccess = "00"

	// expireAfter bounds how long an issued pay URL stays valid.
	expireAfter = 15 * time.Minute
)

// Parameter names of the VNPay protocol.
const (
	ParamVersion         = "vnp_Version"
	ParamCommand         = "vnp_Command"
	ParamTmnCode         = "vnp_TmnCode"
	ParamAmount          = "vnp_Amount"
	ParamCurrCode        = "vnp_CurrCode"
	ParamTxnRef          = "vnp_TxnRef"
	ParamOrderInfo       = "vnp_OrderInfo"
	ParamOrderType       = "vnp_OrderType"
	ParamLocale          = "vnp_Locale"
	ParamReturnURL       = "vnp_ReturnUrl"
	ParamIPAddr          = "vnp_IpAddr"
	ParamCreateDate      = "vnp_CreateDate"
	ParamExpireDate      = "vnp_ExpireDate"
	ParamSecureHash      = "vnp_SecureHash"
	ParamSecureHashType  = "vnp_SecureHashType"
	ParamResponseCode    = "vnp_ResponseCode"
	ParamTransactionNo   = "vnp_TransactionNo"
	ParamBankCode        = "vnp_BankCode"
	ParamTransactionStat = "vnp_TransactionStatus"
)

const dateLayout = "20060102150405"

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

type Client struct {
	cfg Config
	now func() time.Time
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg, now: time.Now}
}

// PayRequest carries the order-specific parameters of an outbound payment.
type PayRequest struct {
	Reference string
	Amount    int64
	OrderInfo string
	ClientIP  string
}

// BuildPayURL assembles the signed redirect URL the browser is sent to.
// No network call happens here; the gateway is only ever contacted by the
// user's browser and by its own server-to-server notification.
func (c *Client) BuildPayURL(req PayRequest) string {
	now := c.now()
	params := map[string]string{
		ParamVersion:    Version,
		ParamCommand:    CommandPay,
		ParamTmnCode:    c.cfg.TmnCode,
		ParamAmount:     strconv.FormatInt(ToMinorUnits(req.Amount), 10),
		ParamCurrCode:   CurrencyCode,
		ParamTxnRef:     req.Reference,
		ParamOrderInfo:  req.OrderInfo,
		ParamOrderType:  "other",
		ParamLocale:     LocaleVN,
		ParamReturnURL:  c.cfg.ReturnURL,
		ParamIPAddr:     req.ClientIP,
		ParamCreateDate: now.Format(dateLayout),
		ParamExpireDate: now.Add(expireAfter).Format(dateLayout),
	}

	query := canonicalQuery(params)
	return c.cfg.PayURL + "?" + query + "&" + ParamSecureHash + "=" + c.sign(query)
}

// Verify recomputes the signature over every received parameter except the
// signature fields themselves and compares it to the transmitted one.
// Callers must treat any false return as untrusted input.
func (c *Client) Verify(params map[string]string) bool {
	received := params[ParamSecureHash]
	if received == "" {
		return false
	}

	unsigned := make(map[string]string, len(params))
	for k, v := range params {
		if k == ParamSecureHash || k == ParamSecureHashType {
			continue
		}
		unsigned[k] = v
	}

	expected := c.sign(canonicalQuery(unsigned))
	// hex comparison is case-insensitive per the gateway spec
	return hmac.Equal([]byte(strings.ToLower(received)), []byte(expected))
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery sorts keys alphabetically and URL-encodes both keys and
// values, matching the string the gateway signs on its side.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// ToMinorUnits converts a whole-unit amount to the gateway's wire amount.
func ToMinorUnits(amount int64) int64 { return amount * 100 }

// FromMinorUnits converts a wire amount string back to whole units,
// rejecting anything that is not an exact multiple of 100.
func FromMinorUnits(s string) (int64, error) {
	minor, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if minor%100 != 0 {
		return 0, fmt.Errorf("amount %d is not a whole currency unit", minor)
	}
	return minor / 100, nil
}
