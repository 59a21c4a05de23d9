// Package upstream posts report rows to the two endpoints of the central
// reporting system.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/farxc/rcs-reporting/internal/logger"
)

const component = "Upstream"

// APIKeyHeader carries the shared key on every upstream call.
const APIKeyHeader = "x-api-key"

type Endpoint string

const (
	DepositLoan Endpoint = "deposit_loan"
	Jewel       Endpoint = "jewel"
)

type Config struct {
	DepositLoanURL string
	JewelURL       string
	APIKey         string
	// Timeout applies to each request; zero means none.
	Timeout time.Duration
	// RPS caps the request rate; zero means unlimited.
	RPS float64
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  log,
	}
}

// StatusError is returned for a non-2xx upstream answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded %d: %s", e.StatusCode, e.Body)
}

func (c *Client) url(e Endpoint) (string, error) {
	switch e {
	case DepositLoan:
		if c.cfg.DepositLoanURL != "" {
			return c.cfg.DepositLoanURL, nil
		}
	case Jewel:
		if c.cfg.JewelURL != "" {
			return c.cfg.JewelURL, nil
		}
	default:
		return "", fmt.Errorf("unknown endpoint %q", e)
	}
	return "", fmt.Errorf("no URL configured for %s", e)
}

// Push posts one row and returns the upstream response. A JSON body is
// returned as is; any other body is returned as a JSON string.
func (c *Client) Push(ctx context.Context, e Endpoint, row any) (json.RawMessage, error) {
	target, err := c.url(e)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set(APIKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error(component, "HTTP request failed: endpoint=%s error=%v", e, err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn(component, "Non-OK HTTP response: endpoint=%s statusCode=%d", e, resp.StatusCode)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return asJSON(raw), nil
}

func asJSON(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	s, _ := json.Marshal(string(raw))
	return s
}

// IsStatus reports whether err is an upstream StatusError with the code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
