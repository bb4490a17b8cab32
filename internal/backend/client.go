package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/observability"
)

// ErrNetwork matches every *NetworkError.
var ErrNetwork = errors.New("backend request failed")

// NetworkError is any failed REST call: transport failure, non-2xx answer or
// an undecodable body. Status is 0 when no response was received.
type NetworkError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Method, e.Path)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }
func (e *NetworkError) Unwrap() error        { return e.Err }

// NotFound reports whether the backend answered 404.
func (e *NetworkError) NotFound() bool { return e.Status == http.StatusNotFound }

// Client talks JSON to the dispatch backend on behalf of one session.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   func() string
	Logger  *slog.Logger
}

func New(baseURL string, timeout time.Duration, token func() string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Token:   token,
		Logger:  logging.OrDiscard(logger),
	}
}

// do sends in (if any) as JSON and decodes the answer into out (if any).
// route is the path template used as the metrics label.
func (c *Client) do(ctx context.Context, method, path, route string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, route, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		if tok := c.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	reqID := logging.RequestID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	observability.BackendRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.BackendRequestsTotal.WithLabelValues(method, route, "error").Inc()
		c.Logger.Warn("backend request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	observability.BackendRequestsTotal.WithLabelValues(method, route, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ne := &NetworkError{Method: method, Path: path, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
		if resp.StatusCode != http.StatusNotFound {
			c.Logger.Warn("backend request rejected", "method", method, "path", path, "request_id", reqID, "status", resp.StatusCode, "message", ne.Message)
		}
		return ne
	}
	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &NetworkError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &NetworkError{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// errorMessage extracts {"error": "..."} or falls back to the raw text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return strings.TrimSpace(string(b))
}

func isNotFound(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.NotFound()
}
