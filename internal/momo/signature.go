package momo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// ErrSignatureMismatch is returned when a payload's signature does not match
// the one recomputed with the partner secret.
var ErrSignatureMismatch = errors.New("momo: signature mismatch")

// field is one key=value pair of a raw signature string.
type field struct {
	key   string
	value string
}

// rawSignature joins fields as key=value pairs separated by '&' in the given
// order. MoMo defines the order per message type; it must not be re-sorted.
func rawSignature(fields []field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA256 of raw keyed by secret.
func Sign(secret, raw string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret, raw, signature string) error {
	expected := Sign(secret, raw)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (r CreateRequest) rawSignature(accessKey string) string {
	return rawSignature([]field{
		{"accessKey", accessKey},
		{"amount", strconv.FormatInt(r.Amount, 10)},
		{"extraData", r.ExtraData},
		{"ipnUrl", r.IPNURL},
		{"orderId", r.OrderID},
		{"orderInfo", r.OrderInfo},
		{"partnerCode", r.PartnerCode},
		{"redirectUrl", r.RedirectURL},
		{"requestId", r.RequestID},
		{"requestType", r.RequestType},
	})
}

func (p IPNPayload) rawSignature(accessKey string) string {
	return rawSignature([]field{
		{"accessKey", accessKey},
		{"amount", strconv.FormatInt(p.Amount, 10)},
		{"extraData", p.ExtraData},
		{"message", p.Message},
		{"orderId", p.OrderID},
		{"orderInfo", p.OrderInfo},
		{"orderType", p.OrderType},
		{"partnerCode", p.PartnerCode},
		{"payType", p.PayType},
		{"requestId", p.RequestID},
		{"responseTime", strconv.FormatInt(p.ResponseTime, 10)},
		{"resultCode", strconv.Itoa(p.ResultCode)},
		{"transId", strconv.FormatInt(p.TransID, 10)},
	})
}
