// Package gateway talks to the payment provider: it opens checkouts for
// purchase intents and looks up payments named by webhook notifications.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/retry"
)

const maxResponseBytes = 1 << 20

// Config configures HTTPGateway.
type Config struct {
	BaseURL         string
	AccessToken     string
	NotificationURL string
	Timeout         time.Duration
	Retry           retry.Config
	Logger          zerolog.Logger
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// HTTPGateway implements usecase.PaymentGateway against a checkout API with
// preference and payment resources.
type HTTPGateway struct {
	baseURL         *url.URL
	accessToken     string
	notificationURL string
	client          *http.Client
	retrier         *retry.Retrier
}

// NewHTTPGateway creates an HTTPGateway.
func NewHTTPGateway(cfg Config) (*HTTPGateway, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid gateway base URL %q", domain.ErrConfigurationFault, cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	retryable := func(err error) bool { return errors.Is(err, domain.ErrGatewayUnavailable) }

	return &HTTPGateway{
		baseURL:         base,
		accessToken:     cfg.AccessToken,
		notificationURL: cfg.NotificationURL,
		client:          client,
		retrier:         retry.New(cfg.Retry, retryable, cfg.Logger),
	}, nil
}

type preferenceItem struct {
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type preferenceRequest struct {
	Items             []preferenceItem       `json:"items"`
	ExternalReference string                 `json:"external_reference"`
	NotificationURL   string                 `json:"notification_url,omitempty"`
	AutoReturn        string                 `json:"auto_return,omitempty"`
	Metadata          domain.PaymentMetadata `json:"metadata"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

type paymentResponse struct {
	ID                json.Number            `json:"id"`
	Status            string                 `json:"status"`
	TransactionAmount json.Number            `json:"transaction_amount"`
	Metadata          domain.PaymentMetadata `json:"metadata"`
}

// CreateIntent opens a checkout for req. The intent id doubles as the
// request's idempotency key, so a retried call does not open a second one.
func (g *HTTPGateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.PaymentIntent, error) {
	body := preferenceRequest{
		Items:             []preferenceItem{{Title: req.Title, UnitPrice: req.Amount, Quantity: 1}},
		ExternalReference: req.IntentID,
		NotificationURL:   g.notificationURL,
		AutoReturn:        "approved",
		Metadata: domain.PaymentMetadata{
			BuyerID:  req.BuyerID,
			SellerID: req.SellerID,
			BatchID:  req.BatchID,
			IntentID: req.IntentID,
		},
	}

	var pref preferenceResponse
	err := g.retrier.Retry(ctx, func() error {
		return g.do(ctx, http.MethodPost, "/checkout/preferences", req.IntentID, body, &pref)
	})
	if err != nil {
		return nil, err
	}
	if pref.ID == "" || pref.InitPoint == "" {
		return nil, fmt.Errorf("%w: checkout response without id or init_point", domain.ErrGatewayUnavailable)
	}

	return &domain.PaymentIntent{
		ID:               req.IntentID,
		BuyerID:          req.BuyerID,
		SellerID:         req.SellerID,
		BatchID:          req.BatchID,
		Amount:           req.Amount,
		CheckoutURL:      pref.InitPoint,
		GatewayReference: pref.ID,
	}, nil
}

// GetPayment fetches the payment with the given id.
func (g *HTTPGateway) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, domain.ErrPaymentNotFound
	}

	var resp paymentResponse
	err := g.retrier.Retry(ctx, func() error {
		return g.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), "", nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if resp.TransactionAmount != "" {
		amount, err = decimal.NewFromString(resp.TransactionAmount.String())
		if err != nil {
			return nil, fmt.Errorf("%w: payment %s amount %q: %w",
				domain.ErrInvalidPaymentEnvelope, paymentID, resp.TransactionAmount, err)
		}
	}

	return &domain.Payment{
		ID:       resp.ID.String(),
		Status:   domain.PaymentStatus(resp.Status),
		Amount:   amount,
		Metadata: resp.Metadata,
	}, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.accessToken)
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %w", domain.ErrGatewayUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %w", domain.ErrGatewayUnavailable, method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrPaymentNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s returned %d", domain.ErrGatewayUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("gateway rejected %s %s with %d: %s", method, path, resp.StatusCode, truncate(raw, 200))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", domain.ErrGatewayUnavailable, method, path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
