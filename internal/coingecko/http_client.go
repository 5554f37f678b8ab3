package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.coingecko.com/api/v3"
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRetries   = 1
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultAPIKeyHeader = "x-cg-demo-api-key"
)

// maxErrorBody limits how much of an error response ends up in messages.
const maxErrorBody = 256

// ErrUnknownCoin is wrapped into fetch errors for ids the API does not know.
var ErrUnknownCoin = errors.New("unknown coin id")

// HTTPClient implements Client over the CoinGecko REST API.
type HTTPClient struct {
	baseURL      string
	client       *http.Client
	maxRetries   int
	retryDelay   time.Duration
	maxDelay     time.Duration
	apiKeyHeader string
	apiKey       string
	logger       *zap.Logger
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets how many times a failed GET is retried. Negative values mean no retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay. A 429 asking to wait longer is not retried.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithAPIKey sends key in header on every request.
func WithAPIKey(header, key string) ClientOption {
	return func(c *HTTPClient) {
		if header != "" {
			c.apiKeyHeader = header
		}
		c.apiKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// NewHTTPClient creates a new CoinGecko client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: DefaultTimeout},
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		maxDelay:     DefaultMaxDelay,
		apiKeyHeader: DefaultAPIKeyHeader,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*HTTPClient)(nil)

// GetCoinList retrieves all coin identifiers known to the API.
func (c *HTTPClient) GetCoinList(ctx context.Context) ([]domain.CoinInfo, error) {
	var result []domain.CoinInfo
	if err := c.get(ctx, EndpointCoinList, "", "/coins/list", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMarkets retrieves current market data ordered by market cap DESC.
func (c *HTTPClient) GetMarkets(ctx context.Context, ids []string, currency string) ([]domain.CoinRecord, error) {
	params := url.Values{}
	params.Set("vs_currency", currency)
	params.Set("ids", strings.Join(ids, ","))
	params.Set("order", "market_cap_desc")
	params.Set("per_page", "100")
	params.Set("page", "1")
	params.Set("sparkline", "false")

	var result []marketResult
	if err := c.get(ctx, EndpointMarkets, "", "/coins/markets", params, &result); err != nil {
		return nil, err
	}

	// The API silently drops unknown ids.
	returned := make(map[string]struct{}, len(result))
	for _, r := range result {
		returned[r.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := returned[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.FetchError{
			Op:     EndpointMarkets,
			CoinID: strings.Join(missing, ","),
			Err:    ErrUnknownCoin,
		}
	}

	records := make([]domain.CoinRecord, len(result))
	for i := range result {
		records[i] = result[i].toDomain()
	}
	return records, nil
}

// GetMarketChartRange retrieves the price, market cap and volume history of id.
func (c *HTTPClient) GetMarketChartRange(ctx context.Context, id, currency string, from, to time.Time) (*domain.HistoricalSeries, error) {
	params := url.Values{}
	params.Set("vs_currency", currency)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	var result marketChartResult
	path := "/coins/" + url.PathEscape(id) + "/market_chart/range"
	if err := c.get(ctx, EndpointMarketChart, id, path, params, &result); err != nil {
		return nil, err
	}

	return result.toDomain(id, currency), nil
}

// get performs a GET with retries and exponential backoff and decodes the JSON body.
// Every returned error is a *domain.FetchError.
func (c *HTTPClient) get(ctx context.Context, endpoint, coinID, path string, params url.Values, result interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryDelay
	exp.MaxInterval = c.maxDelay
	exp.MaxElapsedTime = 0

	hinted := &retryAfterBackOff{BackOff: exp}
	policy := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(c.maxRetries)), ctx)

	op := func() error {
		err := c.do(ctx, endpoint, coinID, u, result)
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			hinted.hint = fe.RetryAfter
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		observability.RecordUpstreamRetry(endpoint)
		c.logger.Warn("retrying market data request",
			zap.String("endpoint", endpoint),
			zap.String("coin", coinID),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return nil
	}

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		// context cancellation while waiting between attempts
		err = &domain.FetchError{Op: endpoint, CoinID: coinID, Err: err}
	}
	c.logger.Debug("market data request failed", zap.String("endpoint", endpoint), zap.Error(err))
	return err
}

// do performs a single attempt. Errors that must not be retried are wrapped
// with backoff.Permanent.
func (c *HTTPClient) do(ctx context.Context, endpoint, coinID, u string, result interface{}) error {
	fail := func(status int, err error) *domain.FetchError {
		return &domain.FetchError{Op: endpoint, CoinID: coinID, StatusCode: status, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return backoff.Permanent(fail(0, fmt.Errorf("create request: %w", err)))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordUpstreamRequest(endpoint, 0, time.Since(start).Seconds())
		return fail(0, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	observability.RecordUpstreamRequest(endpoint, resp.StatusCode, time.Since(start).Seconds())
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		fe := fail(resp.StatusCode, errors.New("rate limited"))
		fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		if fe.RetryAfter > c.maxDelay {
			return backoff.Permanent(fe)
		}
		return fe
	case resp.StatusCode >= http.StatusInternalServerError:
		return fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", upstreamMessage(body)))
	case resp.StatusCode == http.StatusNotFound && coinID != "":
		return backoff.Permanent(fail(resp.StatusCode, fmt.Errorf("%w: %s", ErrUnknownCoin, upstreamMessage(body))))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return backoff.Permanent(fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", upstreamMessage(body))))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return backoff.Permanent(fail(resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)))
	}
	return nil
}

// retryAfterBackOff waits at least the Retry-After hint of the last failure.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next != backoff.Stop && b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Returns 0 when absent or invalid.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// upstreamMessage extracts the API error message, falling back to the raw body.
func upstreamMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.message() != "" {
		return e.message()
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return msg
}
