/*
Package explorer is a client of an esplora-style block explorer REST API
(blockstream.info, mempool.space, electrs).

Every call goes through a rate limiter and a circuit breaker.
Only transport errors and 5xx answers count against the breaker,
a 404 while polling for a fresh tx is business as usual.
*/
package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
)

const (
	DEFAULT_TIMEOUT    = 15 * time.Second
	DEFAULT_RATE_LIMIT = 5 // requests per second, public explorers throttle hard

	maxErrorBody = 512
)

var (
	// MaxNumOfFailingRequests and FailingRatio decide when the breaker opens.
	MaxNumOfFailingRequests = 10
	FailingRatio            = 0.6
)

type Config struct {
	URL         string           // eg. https://mempool.space/signet/api
	ChainConfig *chaincfg.Params // network of the addresses we query
	RateLimit   int              // requests per second, 0 = default, <0 = unlimited
	Timeout     time.Duration    // per request, 0 = default
	HTTPClient  *http.Client     // optional, overrides Timeout
}

type Client struct {
	apiURL      string
	chainConfig *chaincfg.Params
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	limiter     ratelimit.Limiter
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
	})
}

// NewClient returns a client without touching the network.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("esplora url is empty")
	}
	chainConfig := cfg.ChainConfig
	if chainConfig == nil {
		chainConfig = &chaincfg.RegressionNetParams
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DEFAULT_TIMEOUT
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter ratelimit.Limiter
	switch {
	case cfg.RateLimit < 0:
		limiter = ratelimit.NewUnlimited()
	case cfg.RateLimit == 0:
		limiter = ratelimit.New(DEFAULT_RATE_LIMIT)
	default:
		limiter = ratelimit.New(cfg.RateLimit)
	}

	return &Client{
		apiURL:      strings.TrimRight(cfg.URL, "/"),
		chainConfig: chainConfig,
		httpClient:  httpClient,
		breaker:     newCircuitBreaker("esplora"),
		limiter:     limiter,
	}, nil
}

// NewService is NewClient followed by a health check on the tip height.
func NewService(ctx context.Context, cfg *Config) (*Client, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetTipHeight(ctx); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return c, nil
}

type response struct {
	status int
	body   []byte
}

// do performs one request and returns the body of a 2xx answer.
// Any other answer becomes an *EndpointError.
func (c *Client) do(ctx context.Context, method string, path string, body string, contentType string) ([]byte, error) {
	c.limiter.Take()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		r := &response{status: resp.StatusCode, body: raw}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, fmt.Errorf("server error")
		}
		return r, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		e := &EndpointError{Method: method, Endpoint: path, Err: err}
		if r, ok := res.(*response); ok && r != nil {
			e.StatusCode = r.status
			e.Body = trimBody(r.body)
		}
		return nil, e
	}

	r := res.(*response)
	if r.status < 200 || r.status > 299 {
		e := &EndpointError{Method: method, Endpoint: path, StatusCode: r.status, Body: trimBody(r.body), Err: fmt.Errorf("unexpected status")}
		if r.status == http.StatusNotFound {
			e.Err = ErrNotFound
		}
		return nil, e
	}
	return r.body, nil
}

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
