package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
)

// Client talks to the v2 API with an app bearer token
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	logger     logger.Logger
	now        func() time.Time
}

// NewClient creates a new API client. The token is kept on the client and
// never read from process state.
func NewClient(timeout time.Duration, bearerToken string, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"Authorization": "Bearer " + bearerToken,
			"User-Agent":    "twarchive/1.0",
			"Accept":        "application/json",
		},
		baseURL: BaseURL,
		logger:  log,
		now:     time.Now,
	}
}

// SetBaseURL points the client at another host, such as a test server
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHTTPClient replaces the underlying transport client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// doRequest performs an HTTP request with the configured headers.
// Media hosts get no Authorization header.
func (c *Client) doRequest(req *http.Request, authorized bool) (*http.Response, error) {
	for key, value := range c.headers {
		if key == "Authorization" && !authorized {
			continue
		}
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.Redacted(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}

	logger.LogRequest(c.logger, req.Method, req.URL.Redacted(), resp.StatusCode, duration)
	return resp, nil
}

// getJSON performs an authorized GET and decodes the JSON response into target
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}

	resp, err := c.doRequest(req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.Redacted(),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errs.New(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse JSON: %v", err)
	}

	return nil
}

// checkResponseStatus maps a non-2xx status to a typed error. Rate limit
// errors carry the wait the server asked for.
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	t := errs.FromStatusCode(resp.StatusCode)
	e := &errs.Error{Type: t, Code: resp.StatusCode}
	switch t {
	case errs.ErrorTypeAuth:
		e.Message = "bearer token rejected"
	case errs.ErrorTypeNotFound:
		e.Message = "resource not found"
	case errs.ErrorTypeRateLimit:
		e.Message = "rate limit exceeded"
		e.RetryAfter = c.retryAfter(resp.Header)
		endpoint := ""
		if resp.Request != nil {
			endpoint = resp.Request.URL.Path
		}
		logger.LogRateLimit(c.logger, endpoint, e.RetryAfter)
	case errs.ErrorTypeServerError:
		e.Message = "server error"
	default:
		e.Message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}
	return e
}

// retryAfter reads x-rate-limit-reset (epoch seconds) or Retry-After (seconds)
func (c *Client) retryAfter(h http.Header) time.Duration {
	if reset := h.Get("x-rate-limit-reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			wait := time.Unix(epoch, 0).Sub(c.now())
			if wait < time.Second {
				wait = time.Second
			}
			return wait
		}
	}
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// RateStatus is the quota the server reported on a successful response
type RateStatus struct {
	Remaining int
	Reset     time.Time
	Known     bool
}

func rateStatus(h http.Header) RateStatus {
	remaining, err1 := strconv.Atoi(h.Get("x-rate-limit-remaining"))
	reset, err2 := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err1 != nil || err2 != nil {
		return RateStatus{}
	}
	return RateStatus{Remaining: remaining, Reset: time.Unix(reset, 0), Known: true}
}

// apiErrorsToError converts a body-level error list into a typed error
func apiErrorsToError(list []APIError) error {
	first := list[0]
	msg := first.Detail
	if msg == "" {
		msg = first.Title
	}
	switch {
	case strings.Contains(first.Type, "resource-not-found"):
		return errs.New(errs.ErrorTypeNotFound, http.StatusOK, "%s", msg)
	case strings.Contains(first.Type, "not-authorized-for-resource"):
		return errs.New(errs.ErrorTypeProtected, http.StatusOK, "%s", msg)
	case strings.Contains(first.Type, "usage-capped"):
		return errs.New(errs.ErrorTypeRateLimit, http.StatusOK, "%s", msg)
	default:
		return errs.New(errs.ErrorTypeUnknown, http.StatusOK, "%s", msg)
	}
}

// LookupUser resolves a handle. Protected accounts fail with ErrorTypeProtected.
func (c *Client) LookupUser(ctx context.Context, handle string) (*User, error) {
	var resp userResponse
	if err := c.getJSON(ctx, UserByUsernameURL(c.baseURL, handle), &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		if len(resp.Errors) > 0 {
			return nil, apiErrorsToError(resp.Errors)
		}
		return nil, errs.New(errs.ErrorTypeNotFound, http.StatusOK, "user %s not found", handle)
	}
	if resp.Data.Protected {
		return nil, errs.New(errs.ErrorTypeProtected, http.StatusOK, "account %s is protected", handle)
	}
	return resp.Data, nil
}

// FetchTimelinePage fetches one page of a user's posts. A 200 response that
// carries only errors is reported as an error.
func (c *Client) FetchTimelinePage(ctx context.Context, userID string, opts PageOptions) (*TimelinePage, error) {
	url := UserTweetsURL(c.baseURL, userID, opts)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	resp, err := c.doRequest(req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	var body timelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse timeline page: %v", err)
	}
	if len(body.Data) == 0 && len(body.Errors) > 0 {
		return nil, apiErrorsToError(body.Errors)
	}

	page, err := convertPage(&body)
	if err != nil {
		return nil, err
	}
	page.Rate = rateStatus(resp.Header)
	return page, nil
}

// OpenMedia starts streaming a media file. The caller closes the body.
func (c *Client) OpenMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}

	resp, err := c.doRequest(req, false)
	if err != nil {
		return nil, err
	}
	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}
