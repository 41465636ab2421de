package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
)

// Client is the outbound payment-gateway contract.
type Client interface {
	// RequestPayment submits a card payment. A FAIL envelope is returned as
	// a non-nil result with Success=false, not as an error.
	RequestPayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error)

	// GetPayment queries a transaction for reconciliation.
	GetPayment(ctx context.Context, userID int64, transactionKey string) (*PaymentResult, error)
}

// PaymentRequest is the outbound POST /payments body plus caller identity.
type PaymentRequest struct {
	OrderID     int64           `json:"orderId"`
	UserID      int64           `json:"-"`
	CardType    models.CardType `json:"cardType"`
	CardNo      string          `json:"cardNo"`
	Amount      int64           `json:"amount"`
	CallbackURL string          `json:"callbackUrl"`
}

// PaymentResult is the decoded gateway envelope.
type PaymentResult struct {
	Success        bool
	TransactionKey string
	Status         models.PaymentStatus
	ErrorCode      string
	Message        string
}

type envelope struct {
	Meta struct {
		Result    string `json:"result"`
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	} `json:"meta"`
	Data struct {
		TransactionKey string `json:"transactionKey"`
		Status         string `json:"status"`
	} `json:"data"`
}

// Config tunes timeouts, retries, and the circuit breaker.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	BreakerName    string
}

// HTTPClient implements Client over resty with bounded exponential retry and
// a circuit breaker keyed to the downstream.
type HTTPClient struct {
	client     *resty.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	logger     zerolog.Logger
}

// NewHTTPClient creates a gateway client. The breaker opens past a 50%
// failure rate over a rolling window and admits a probe after the open
// timeout elapses.
func NewHTTPClient(cfg Config, logger zerolog.Logger) *HTTPClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})

	return &HTTPClient{
		client:     client,
		breaker:    breaker,
		maxRetries: cfg.MaxRetries,
		logger:     logger.With().Str("component", "pg_client").Logger(),
	}
}

func (c *HTTPClient) RequestPayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error) {
	c.logger.Info().
		Int64("order_id", req.OrderID).
		Str("card_type", string(req.CardType)).
		Str("card_no", observability.MaskCardNo(req.CardNo)).
		Int64("amount", req.Amount).
		Msg("requesting payment")

	return c.call(ctx, func() (*resty.Response, error) {
		var env envelope
		return c.client.R().
			SetContext(ctx).
			SetHeader("X-USER-ID", strconv.FormatInt(req.UserID, 10)).
			SetBody(req).
			SetResult(&env).
			Post("/payments")
	})
}

func (c *HTTPClient) GetPayment(ctx context.Context, userID int64, transactionKey string) (*PaymentResult, error) {
	return c.call(ctx, func() (*resty.Response, error) {
		var env envelope
		return c.client.R().
			SetContext(ctx).
			SetHeader("X-USER-ID", strconv.FormatInt(userID, 10)).
			SetResult(&env).
			Get("/payments/" + transactionKey)
	})
}

// call runs one gateway request through the breaker, retrying transient
// failures (timeouts, 5xx) with exponential backoff.
func (c *HTTPClient) call(ctx context.Context, do func() (*resty.Response, error)) (*PaymentResult, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var resp *resty.Response

		operation := func() error {
			var err error
			resp, err = do()
			if err != nil {
				if isTimeout(err) {
					return err // transient, retry
				}
				return backoff.Permanent(err)
			}
			if resp.StatusCode() >= 500 {
				return fmt.Errorf("gateway returned %d", resp.StatusCode())
			}
			return nil
		}

		policy := backoff.WithMaxRetries(
			backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
			uint64(c.maxRetries),
		)
		if err := backoff.Retry(operation, policy); err != nil {
			return nil, err
		}
		return resp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, models.ErrCircuitOpen
		}
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", models.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamFailure, err)
	}

	resp := result.(*resty.Response)
	env, ok := resp.Result().(*envelope)
	if !ok || env == nil {
		return nil, fmt.Errorf("%w: malformed gateway response", models.ErrUpstreamFailure)
	}

	out := &PaymentResult{
		Success:        env.Meta.Result == "SUCCESS",
		TransactionKey: env.Data.TransactionKey,
		Status:         models.PaymentStatus(env.Data.Status),
		ErrorCode:      env.Meta.ErrorCode,
		Message:        env.Meta.Message,
	}
	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
