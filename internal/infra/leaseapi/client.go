package leaseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
	"github.com/bryanwahyu/leasecheck/internal/domain/session"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

const (
	module = "leaseapi"

	pathCheckAccess    = "/api/billing/check-access"
	pathAnalyze        = "/api/lease/analyze"
	pathCheckoutCreate = "/api/billing/checkout/create"
	pathTransaction    = "/api/billing/transaction/"

	// responses above this are truncated before decoding
	maxResponseBytes = 8 << 20
)

// APIError is a non-2xx answer from the lease backend.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("lease api error: status=%d request_id=%s", e.StatusCode, e.RequestID)
	}
	return fmt.Sprintf("lease api error: status=%d request_id=%s message=%s", e.StatusCode, e.RequestID, e.Message)
}

// Client talks to the lease analysis and billing backend. It implements
// session.Authority and lease.Analyzer. No request is retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.ILogger
}

func NewClient(baseURL string, timeout time.Duration, log logger.ILogger) *Client {
	hc := &http.Client{}
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		logger:     log,
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// CheckAccess asks the billing backend about id. Both flags must be literal
// JSON true; anything else is a denial. Non-2xx answers are errors.
func (c *Client) CheckAccess(ctx context.Context, id session.Identity) (session.Verdict, error) {
	q := url.Values{"user_id": {string(id)}}
	var body map[string]any
	if err := c.doJSON(ctx, http.MethodGet, pathCheckAccess+"?"+q.Encode(), nil, &body); err != nil {
		return session.Verdict{}, err
	}
	v := session.Verdict{
		HasAccess: body["has_access"] == true,
		IsPaid:    body["is_paid"] == true,
	}
	if s, ok := body["expires_at"].(string); ok {
		v.ExpiresAt = s
	}
	return v, nil
}

// AnalyzePage uploads one page as the multipart field "files". A non-2xx
// answer becomes *lease.RejectedError so the batch can continue.
func (c *Client) AnalyzePage(ctx context.Context, identity string, page lease.Page) (lease.PageResponse, error) {
	data, err := readPage(page)
	if err != nil {
		return lease.PageResponse{}, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, page.Name))
	h.Set("Content-Type", contentType(page, data))
	part, err := mw.CreatePart(h)
	if err != nil {
		return lease.PageResponse{}, err
	}
	if _, err := part.Write(data); err != nil {
		return lease.PageResponse{}, err
	}
	if err := mw.Close(); err != nil {
		return lease.PageResponse{}, err
	}

	q := url.Values{"user_id": {identity}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathAnalyze+"?"+q.Encode(), &buf)
	if err != nil {
		return lease.PageResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	status, respBody, reqID, err := c.send(req)
	if err != nil {
		return lease.PageResponse{}, err
	}
	if status < 200 || status >= 300 {
		apiErr := &APIError{StatusCode: status, Message: errorMessage(respBody), RequestID: reqID}
		c.logger.Warn(module, "Page rejected", map[string]interface{}{
			"status":     status,
			"page":       page.Name,
			"request_id": reqID,
			"message":    apiErr.Message,
		})
		return lease.PageResponse{}, &lease.RejectedError{StatusCode: status, Message: apiErr.Message, Err: apiErr}
	}

	resp, err := lease.DecodePageResponse(respBody)
	if err != nil {
		return lease.PageResponse{}, fmt.Errorf("decode analyze response: %w", err)
	}
	return resp, nil
}

// CheckoutRequest asks the backend to create a hosted checkout.
type CheckoutRequest struct {
	PriceID     string         `json:"price_id"`
	Quantity    int            `json:"quantity"`
	UserID      string         `json:"user_id,omitempty"`
	Environment string         `json:"environment,omitempty"`
	CustomData  map[string]any `json:"custom_data,omitempty"`
}

type CheckoutResponse struct {
	TransactionID string `json:"transaction_id"`
	CheckoutURL   string `json:"checkout_url"`
}

// CreateCheckout creates a checkout through the billing backend.
func (c *Client) CreateCheckout(ctx context.Context, in CheckoutRequest) (*CheckoutResponse, error) {
	var body map[string]any
	if err := c.doJSON(ctx, http.MethodPost, pathCheckoutCreate, in, &body); err != nil {
		return nil, err
	}
	out := &CheckoutResponse{
		TransactionID: firstString(body, "transaction_id", "id"),
		CheckoutURL:   firstString(body, "checkout_url", "url"),
	}
	if data, ok := body["data"].(map[string]any); ok {
		if out.TransactionID == "" {
			out.TransactionID = firstString(data, "transaction_id", "id")
		}
		if out.CheckoutURL == "" {
			if co, ok := data["checkout"].(map[string]any); ok {
				out.CheckoutURL = firstString(co, "url")
			}
		}
	}
	if out.TransactionID == "" {
		return nil, fmt.Errorf("checkout create: response carries no transaction id")
	}
	return out, nil
}

type Transaction struct {
	ID     string `json:"transaction_id"`
	Status string `json:"status"`
}

// GetTransaction reads one transaction's status.
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var body map[string]any
	if err := c.doJSON(ctx, http.MethodGet, pathTransaction+url.PathEscape(id), nil, &body); err != nil {
		return nil, err
	}
	src := body
	if data, ok := body["data"].(map[string]any); ok {
		src = data
	}
	tx := &Transaction{
		ID:     firstString(src, "transaction_id", "id"),
		Status: firstString(src, "status"),
	}
	if tx.ID == "" {
		tx.ID = id
	}
	return tx, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	status, body, reqID, err := c.send(req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &APIError{StatusCode: status, Message: errorMessage(body), RequestID: reqID}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(req *http.Request) (int, []byte, string, error) {
	reqID := "req_" + uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, reqID, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, reqID, err
	}

	c.logger.Debug(module, "Backend call", map[string]interface{}{
		"method":      req.Method,
		"path":        req.URL.Path,
		"status":      resp.StatusCode,
		"request_id":  reqID,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return resp.StatusCode, body, reqID, nil
}

func readPage(p lease.Page) ([]byte, error) {
	if p.Open == nil {
		return nil, fmt.Errorf("page %q has no content", p.Name)
	}
	rc, err := p.Open()
	if err != nil {
		return nil, fmt.Errorf("open page %q: %w", p.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, lease.MaxPageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read page %q: %w", p.Name, err)
	}
	if int64(len(data)) > lease.MaxPageBytes {
		return nil, fmt.Errorf("page %q: %w", p.Name, lease.ErrPageTooLarge)
	}
	return data, nil
}

func contentType(p lease.Page, data []byte) string {
	if p.ContentType != "" {
		return p.ContentType
	}
	return mimetype.Detect(data).String()
}

// errorMessage pulls detail, message or error out of an error body.
func errorMessage(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, k := range []string{"detail", "message", "error"} {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
