package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bridal-order-service/internal/util"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// Config holds the partner credentials and callback URLs.
type Config struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
	RequestType string
	Lang        string
	Timeout     time.Duration
}

// Client signs outbound payment requests and verifies inbound notifications.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// NewClient creates a gateway client. Requests are traced through otelhttp.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.PartnerCode == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("momo: partner code, access key and secret key are required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("momo: endpoint is required")
	}
	if cfg.RequestType == "" {
		cfg.RequestType = "captureWallet"
	}
	if cfg.Lang == "" {
		cfg.Lang = "vi"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: util.GetLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// PaymentRequest is what the caller knows about a payment attempt.
type PaymentRequest struct {
	OrderRef  string
	RequestID string
	Amount    int64
	OrderInfo string
	ExtraData string
}

// CreatePayment signs and submits a create-payment request. A transport
// failure, a non-2xx status or a non-zero resultCode is returned as an error;
// *Error carries the gateway's result code.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*CreateResponse, error) {
	ctx, span := util.StartSpan(ctx, "MoMoClient.CreatePayment",
		attribute.String("momo.order_id", req.OrderRef),
		attribute.String("momo.request_id", req.RequestID))
	defer span.End()

	body := c.BuildCreateRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal momo request: %w", err)
	}

	start := time.Now()
	defer func() {
		util.PaymentGatewayLatency.Observe(time.Since(start).Seconds())
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build momo request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("momo request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read momo response: %w", err)
	}

	var out CreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("momo returned HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode momo response: %w", err)
	}

	if resp.StatusCode >= 300 || out.ResultCode != ResultSuccess {
		gwErr := &Error{ResultCode: out.ResultCode, Message: out.Message}
		if resp.StatusCode >= 300 && out.Message == "" {
			gwErr.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		util.RecordError(span, gwErr)
		c.logger.Warn("MoMo rejected payment request",
			zap.String("momo_order_id", req.OrderRef),
			zap.Int("http_status", resp.StatusCode),
			zap.Int("result_code", out.ResultCode),
			zap.String("message", out.Message))
		return &out, gwErr
	}

	return &out, nil
}

// BuildCreateRequest fills in partner fields and the signature.
func (c *Client) BuildCreateRequest(req PaymentRequest) CreateRequest {
	body := CreateRequest{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   req.RequestID,
		Amount:      req.Amount,
		OrderID:     req.OrderRef,
		OrderInfo:   req.OrderInfo,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		RequestType: c.cfg.RequestType,
		ExtraData:   req.ExtraData,
		Lang:        c.cfg.Lang,
	}
	body.Signature = Sign(c.cfg.SecretKey, body.rawSignature(c.cfg.AccessKey))
	return body
}

// VerifyIPN recomputes the notification signature from every field except the
// received signature and compares it with the received one.
func (c *Client) VerifyIPN(p IPNPayload) error {
	if p.PartnerCode != c.cfg.PartnerCode {
		return fmt.Errorf("%w: unexpected partner code %q", ErrSignatureMismatch, p.PartnerCode)
	}
	return verify(c.cfg.SecretKey, p.rawSignature(c.cfg.AccessKey), p.Signature)
}

// SignIPN computes the signature MoMo would put on p. Used to build fixtures
// and sandbox replays.
func (c *Client) SignIPN(p IPNPayload) string {
	return Sign(c.cfg.SecretKey, p.rawSignature(c.cfg.AccessKey))
}
