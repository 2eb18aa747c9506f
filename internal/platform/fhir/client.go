package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrNotFound matches a StatusError for a missing or deleted resource.
var ErrNotFound = errors.New("fhir: resource not found")

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Outcome    *OperationOutcome
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.StatusCode)
	if d := e.Outcome.Diagnostics(); d != "" {
		msg += ": " + d
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) match 404 and 410 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound &&
		(e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

// Client issues REST interactions against a single FHIR base URL. Each call
// is exactly one round trip: no retries, and no deadline other than ctx.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// NewClient creates a client for baseURL (e.g. https://server.example.org/fhir).
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	logger = logger.With().Str("component", "fhir-client").Logger()
	rc := resty.New().
		SetBaseURL(baseURL).
		SetLogger(restyLogger{logger: logger}).
		SetHeader("Accept", MIMEFHIRJSON)
	return &Client{http: rc, logger: logger}
}

// Search runs a type-level search without parameters and decodes the Bundle.
func (c *Client) Search(ctx context.Context, resourceType string) (*Bundle, error) {
	body, err := c.do(ctx, http.MethodGet, url.PathEscape(resourceType), nil, nil)
	if err != nil {
		return nil, err
	}
	return ParseBundle(body)
}

// Read fetches a single resource and returns the raw body.
func (c *Client) Read(ctx context.Context, resourceType, id string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, resourcePath(resourceType, id), nil, nil)
}

// Update PUTs resource at resourceType/id.
func (c *Client) Update(ctx context.Context, resourceType, id string, params url.Values, resource any) ([]byte, error) {
	return c.do(ctx, http.MethodPut, resourcePath(resourceType, id), params, resource)
}

// Create POSTs resource to the type endpoint.
func (c *Client) Create(ctx context.Context, resourceType string, params url.Values, resource any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url.PathEscape(resourceType), params, resource)
}

// Delete removes resourceType/id.
func (c *Client) Delete(ctx context.Context, resourceType, id string) error {
	_, err := c.do(ctx, http.MethodDelete, resourcePath(resourceType, id), nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, resource any) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}
	if method != http.MethodGet {
		req.SetHeader("Prefer", PreferRepresentation)
	}
	if resource != nil {
		raw, err := json.Marshal(resource)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		req.SetHeader("Content-Type", MIMEFHIRJSONCharset).SetBody(raw)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", resp.Request.URL).
		Int("status", resp.StatusCode()).
		Dur("latency", resp.Time()).
		Msg("fhir request")

	if !resp.IsSuccess() {
		return nil, &StatusError{
			Method:     method,
			URL:        resp.Request.URL,
			StatusCode: resp.StatusCode(),
			Outcome:    ParseOutcome(resp.Body()),
		}
	}
	return resp.Body(), nil
}

func resourcePath(resourceType, id string) string {
	return url.PathEscape(resourceType) + "/" + url.PathEscape(id)
}

// DecodeResource reads the resourceType and id from a response body.
func DecodeResource(body []byte) (*Resource, error) {
	var r Resource
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return &r, nil
}

// restyLogger routes resty's internal warnings into zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}
