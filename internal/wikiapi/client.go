// Package wikiapi is a typed client over the Feishu wiki/docx open-api
// surface the reconciler and change processor need: node listing,
// document CRUD, block children manipulation, and event subscription.
package wikiapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/imroc/req/v3"
)

const (
	baseURL = "https://open.feishu.cn/open-apis"

	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 8 * time.Second
	defaultTimeout = 30 * time.Second

	defaultNodePageSize  = 50
	defaultBlockPageSize = 100
)

// Client is a bearer-token-authenticated client for the wiki/docx APIs.
type Client struct {
	http *req.Client
}

// NewClient builds a Client that sends token as a bearer credential on
// every request.
func NewClient(token string) *Client {
	c := req.C().
		SetBaseURL(baseURL).
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetTimeout(defaultTimeout).
		SetCommonBearerAuthToken(token).
		SetJsonMarshal(sonic.Marshal).
		SetJsonUnmarshal(sonic.Unmarshal)

	return &Client{http: c}
}

// SetToken swaps the bearer token used on subsequent requests, for
// processes that refresh auth out-of-band.
func (c *Client) SetToken(token string) {
	c.http.SetCommonBearerAuthToken(token)
}

// SetBaseURL overrides the API base URL, used by tests to point the
// client at a local fixture server.
func (c *Client) SetBaseURL(url string) {
	c.http.SetBaseURL(url)
}

// request performs one HTTP call with the §4.2 retry policy: 429
// honors Retry-After when present, otherwise exponential backoff from
// baseBackoff doubling to maxBackoff, up to maxRetries retries after the
// first attempt. A non-zero API `code` fails immediately without retrying.
func (c *Client) request(ctx context.Context, build func(*req.Request) *req.Request, method, path string, into any) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		rq := build(c.http.R()).SetContext(ctx)

		var resp *req.Response
		var err error
		switch method {
		case http.MethodGet:
			resp, err = rq.Get(path)
		case http.MethodPost:
			resp, err = rq.Post(path)
		case http.MethodDelete:
			resp, err = rq.Delete(path)
		default:
			return fmt.Errorf("wikiapi: unsupported method %s", method)
		}

		if err != nil {
			lastErr = fmt.Errorf("wikiapi: %s %s: %w", method, path, err)
			if attempt == maxRetries {
				break
			}
			time.Sleep(backoffDelay(attempt))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("wikiapi: %s %s: rate limited", method, path)
			if attempt == maxRetries {
				break
			}
			time.Sleep(retryAfterDelay(resp, attempt))
			continue
		}

		if resp.IsErrorState() {
			return fmt.Errorf("wikiapi: %s %s: http %d", method, path, resp.StatusCode)
		}

		body := resp.Bytes()
		if len(body) == 0 {
			return fmt.Errorf("wikiapi: %s %s: empty response body (http %d)", method, path, resp.StatusCode)
		}

		var env envelope[json.RawMessage]
		if err := sonic.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("wikiapi: %s %s: non-json response (http %d): %w", method, path, resp.StatusCode, err)
		}
		if env.Code != 0 {
			if notFoundCodes[env.Code] {
				return fmt.Errorf("%w: %s", ErrNotFound, env.Msg)
			}
			return &APIError{Code: env.Code, Msg: env.Msg}
		}

		if into != nil && len(env.Data) > 0 {
			if err := sonic.Unmarshal(env.Data, into); err != nil {
				return fmt.Errorf("wikiapi: %s %s: decode data: %w", method, path, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	d := baseBackoff * time.Duration(math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func retryAfterDelay(resp *req.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return backoffDelay(attempt)
}
