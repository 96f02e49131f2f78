package momo

import (
	"fmt"
	"strconv"
	"strings"
)

// ResultSuccess is the resultCode MoMo uses for an accepted request or a paid
// transaction.
const ResultSuccess = 0

// CreateRequest is the body of the create-payment call.
type CreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

// CreateResponse is MoMo's answer to a create-payment call.
type CreateResponse struct {
	PartnerCode  string `json:"partnerCode"`
	RequestID    string `json:"requestId"`
	OrderID      string `json:"orderId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink,omitempty"`
	QRCodeURL    string `json:"qrCodeUrl,omitempty"`
}

// IPNPayload is the server-to-server notification MoMo posts after a payment
// attempt. It is validated and discarded, never stored as is.
type IPNPayload struct {
	PartnerCode  string `json:"partnerCode" binding:"required"`
	OrderID      string `json:"orderId" binding:"required"`
	RequestID    string `json:"requestId" binding:"required"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature" binding:"required"`
}

// Succeeded reports whether MoMo marked the transaction as paid.
func (p IPNPayload) Succeeded() bool {
	return p.ResultCode == ResultSuccess
}

// Error is a non-zero resultCode returned by the gateway.
type Error struct {
	ResultCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("momo: result code %d: %s", e.ResultCode, e.Message)
}

// OrderRef builds the gateway orderId for one payment attempt. MoMo rejects a
// reused orderId, so every attempt carries its own suffix.
func OrderRef(orderID int64, attempt int64) string {
	return fmt.Sprintf("%d-%d", orderID, attempt)
}

// ParseOrderRef extracts the store order ID from a gateway orderId.
func ParseOrderRef(ref string) (int64, error) {
	head, _, _ := strings.Cut(ref, "-")
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("momo: malformed order reference %q", ref)
	}
	return id, nil
}
