package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCatalogUnavailable is returned when the catalog cannot answer: circuit
// open, retries exhausted, or an unexpected response.
var ErrCatalogUnavailable = errors.New("product catalog unavailable")

// CatalogConfig holds configuration for the product catalog client.
type CatalogConfig struct {
	// BaseURL of the catalog service, e.g. "https://catalog.gatewise.io".
	BaseURL string

	// Timeout per HTTP request. Default: 5 seconds.
	Timeout time.Duration

	// MaxRetries for transient failures. Default: 2.
	MaxRetries uint64

	Logger zerolog.Logger
}

// CatalogClient answers whether a serial number belongs to a supported
// product line. Calls are protected by a circuit breaker and retried with
// exponential backoff; the registration flow itself never retries, so
// transient catalog hiccups are absorbed here.
type CatalogClient struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[bool]
	maxRetries uint64
	logger     zerolog.Logger
}

// NewCatalogClient creates a product catalog client.
func NewCatalogClient(cfg CatalogConfig) *CatalogClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}

	breaker := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:    "product-catalog",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
	})

	return &CatalogClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		breaker:    breaker,
		maxRetries: maxRetries,
		logger:     cfg.Logger,
	}
}

// catalogResponse is the catalog's answer for a serial number.
type catalogResponse struct {
	Supported bool `json:"supported"`
}

// IsSupported asks the catalog whether the serial number's product line is
// supported.
func (c *CatalogClient) IsSupported(ctx context.Context, serialNumber string) (bool, error) {
	endpoint := c.baseURL + "/v1/products/supported?serial=" + url.QueryEscape(serialNumber)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 0

	var supported bool

	operation := func() error {
		result, err := c.breaker.Execute(func() (bool, error) {
			return c.query(ctx, endpoint)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: circuit open", ErrCatalogUnavailable))
			}
			return err
		}
		supported = result
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		if errors.Is(err, ErrCatalogUnavailable) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	return supported, nil
}

func (c *CatalogClient) query(ctx context.Context, endpoint string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var decoded catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("decode catalog response: %w", err)
	}

	return decoded.Supported, nil
}
