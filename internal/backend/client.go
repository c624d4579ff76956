package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
)

const (
	loginSuccessMessage    = "Login successful"
	registerSuccessMessage = "User registered successfully"

	// maxErrorBody bounds how much of an error response is read for its detail.
	maxErrorBody = 64 << 10
)

// Client talks to the receipt parsing backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type (
	// LoginResult is the identity returned by a successful login.
	LoginResult struct {
		Message string `json:"message"`
		UserID  int64  `json:"user_id"`
	}

	// Receipt is an image file chosen for upload.
	Receipt struct {
		Name        string
		ContentType string
		Data        []byte
	}

	credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	messageResponse struct {
		Message string `json:"message"`
	}

	listResponse struct {
		Expenses   []core.Expense `json:"expenses"`
		Total      *int           `json:"total"`
		GrandTotal *core.Money    `json:"grand_total"`
	}
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a client for the backend rooted at baseURL, e.g.
// "http://localhost:8000". Requests carry no timeout of their own; callers
// bound them through the context.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend url %q: missing host", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Login exchanges credentials for a user id.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	if err := c.postJSON(ctx, "/login", credentials{Email: email, Password: password}, &out); err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	if out.Message != loginSuccessMessage {
		return LoginResult{}, fmt.Errorf("login: %w", ErrUnexpectedResponse)
	}
	return out, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, email, password string) error {
	var out messageResponse
	if err := c.postJSON(ctx, "/register", credentials{Email: email, Password: password}, &out); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if out.Message != registerSuccessMessage {
		return fmt.Errorf("register: %w", ErrUnexpectedResponse)
	}
	return nil
}

// ListExpenses returns one page of the user's whole ledger.
func (c *Client) ListExpenses(ctx context.Context, userID int64, limit, offset int) (core.PageResult, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	res, err := c.getPage(ctx, "/all-expenses/"+strconv.FormatInt(userID, 10), q)
	if err != nil {
		return core.PageResult{}, fmt.Errorf("list expenses (user=%d, offset=%d): %w", userID, offset, err)
	}
	return res, nil
}

// ListExpensesByCategory returns one page of the user's expenses in category.
func (c *Client) ListExpensesByCategory(ctx context.Context, userID int64, category core.Category, limit, offset int) (core.PageResult, error) {
	q := url.Values{}
	q.Set("category", string(category))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	res, err := c.getPage(ctx, "/expenses-by-category/"+strconv.FormatInt(userID, 10), q)
	if err != nil {
		return core.PageResult{}, fmt.Errorf("list expenses by category (user=%d, category=%s, offset=%d): %w", userID, category, offset, err)
	}
	return res, nil
}

// UploadReceipt sends the image as the multipart field "file". The response
// body is ignored.
func (c *Client) UploadReceipt(ctx context.Context, r Receipt) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, r.Name))
	ct := r.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("upload receipt: create part: %w", err)
	}
	if _, err := part.Write(r.Data); err != nil {
		return fmt.Errorf("upload receipt: write part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("upload receipt: close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/receipt", nil, &buf)
	if err != nil {
		return fmt.Errorf("upload receipt: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("upload receipt: %w", err)
	}
	return nil
}

// ProcessReceipt asks the backend to turn the most recently uploaded
// receipt of userID into an expense. The response body is ignored.
func (c *Client) ProcessReceipt(ctx context.Context, userID int64) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/process-receipt/"+strconv.FormatInt(userID, 10), nil, nil)
	if err != nil {
		return fmt.Errorf("process receipt: %w", err)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("process receipt (user=%d): %w", userID, err)
	}
	return nil
}

func (c *Client) getPage(ctx context.Context, path string, q url.Values) (core.PageResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return core.PageResult{}, err
	}
	var body listResponse
	if err := c.do(req, &body); err != nil {
		return core.PageResult{}, err
	}
	if body.Expenses == nil || body.Total == nil {
		return core.PageResult{}, fmt.Errorf("%w: missing expenses or total", ErrMalformedResponse)
	}
	res := core.PageResult{
		Items:      body.Expenses,
		TotalCount: *body.Total,
		GrandTotal: core.Zero(),
	}
	if body.GrandTotal != nil {
		res.GrandTotal = *body.GrandTotal
	}
	return res, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes req and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.DebugContext(req.Context(), "Backend request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err)
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	slog.DebugContext(req.Context(), "Backend request completed",
		"method", req.Method,
		"path", req.URL.Path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &body) != nil || len(body.Detail) == 0 {
		return apiErr
	}
	// detail is usually a string; validation errors carry a list of objects
	// which are not meant for display.
	var s string
	if json.Unmarshal(body.Detail, &s) == nil {
		apiErr.Detail = strings.TrimSpace(s)
	}
	return apiErr
}
