package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethgrid/pester"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/logger"
)

// SquareClient implements PaymentGateway against the Square v2 REST API.
type SquareClient struct {
	baseURL    string
	token      string
	apiVersion string
	client     Doer
	log        *zap.Logger
}

type SquareOption func(*SquareClient)

// WithHTTPClient replaces the default pester client.
func WithHTTPClient(d Doer) SquareOption { return func(s *SquareClient) { s.client = d } }
func WithLogger(l *zap.Logger) SquareOption { return func(s *SquareClient) { s.log = l } }

// NewPesterClient returns a pester client making a single attempt per
// call.  Retries belong to retry.Executor, which keeps one idempotency key
// per logical charge and records every attempt.
func NewPesterClient(timeout time.Duration, l *zap.Logger) *pester.Client {
	c := pester.NewExtendedClient(&http.Client{Timeout: timeout})
	c.MaxRetries = 1
	c.Backoff = pester.DefaultBackoff
	c.LogHook = func(e pester.ErrEntry) {
		l.Warn("http attempt failed", zap.String("method", e.Method), zap.String("url", e.URL), zap.Error(e.Err))
	}
	return c
}

func NewSquareClient(baseURL, accessToken, apiVersion string, timeout time.Duration, opts ...SquareOption) *SquareClient {
	s := &SquareClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      accessToken,
		apiVersion: apiVersion,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.Named(s.log, "square")
	if s.client == nil {
		s.client = NewPesterClient(timeout, s.log)
	}
	return s
}

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type paymentBody struct {
	Payment struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		AmountMoney money  `json:"amount_money"`
		CardDetails *struct {
			Card struct {
				Brand string `json:"card_brand"`
				Last4 string `json:"last_4"`
			} `json:"card"`
		} `json:"card_details"`
	} `json:"payment"`
	Errors []squareError `json:"errors"`
}

type refundBody struct {
	Refund struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		AmountMoney money  `json:"amount_money"`
	} `json:"refund"`
	Errors []squareError `json:"errors"`
}

func (s *SquareClient) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	payload := map[string]any{
		"source_id":       req.SourceToken,
		"idempotency_key": req.IdempotencyKey,
		"amount_money":    money{Amount: req.Amount, Currency: req.Currency},
		"autocomplete":    true,
		"reference_id":    req.ReferenceID,
	}
	if req.Note != "" {
		payload["note"] = req.Note
	}
	var out paymentBody
	if err := s.post(ctx, "/v2/payments", payload, &out, &out.Errors); err != nil {
		return nil, err
	}
	c := &Charge{PaymentID: out.Payment.ID, Status: out.Payment.Status, Amount: out.Payment.AmountMoney.Amount}
	if cd := out.Payment.CardDetails; cd != nil {
		c.CardBrand, c.CardLast4 = cd.Card.Brand, cd.Card.Last4
	}
	s.log.Info("payment captured", zap.String("payment_id", c.PaymentID), zap.String("reference_id", req.ReferenceID))
	return c, nil
}

func (s *SquareClient) Cancel(ctx context.Context, paymentID string) error {
	var out paymentBody
	if err := s.post(ctx, "/v2/payments/"+url.PathEscape(paymentID)+"/cancel", nil, &out, &out.Errors); err != nil {
		return err
	}
	s.log.Info("payment cancelled", zap.String("payment_id", paymentID))
	return nil
}

func (s *SquareClient) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	reason := req.Reason
	if reason == "" {
		reason = "Customer request"
	}
	payload := map[string]any{
		"idempotency_key": req.IdempotencyKey,
		"payment_id":      req.PaymentID,
		"amount_money":    money{Amount: req.Amount, Currency: req.Currency},
		"reason":          reason,
	}
	var out refundBody
	if err := s.post(ctx, "/v2/refunds", payload, &out, &out.Errors); err != nil {
		return nil, err
	}
	s.log.Info("refund created", zap.String("refund_id", out.Refund.ID), zap.String("payment_id", req.PaymentID))
	return &Refund{RefundID: out.Refund.ID, Status: out.Refund.Status, Amount: out.Refund.AmountMoney.Amount}, nil
}

// post sends payload and decodes the answer into out.  errs points at the
// errors slice inside out so provider errors can be surfaced.
func (s *SquareClient) post(ctx context.Context, path string, payload, out any, errs *[]squareError) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Square-Version", s.apiVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("square %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("square %s: read body: %w", path, err)
	}
	decodeErr := json.Unmarshal(raw, out)
	if resp.StatusCode >= 300 || len(*errs) > 0 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(*errs) > 0 {
			e := (*errs)[0]
			apiErr.Category, apiErr.Code, apiErr.Detail = e.Category, e.Code, e.Detail
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("square %s: decode: %w", path, decodeErr)
	}
	return nil
}
