// Package api is the HTTP client for the chess sync server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chesssync/internal/client/display"
	"chesssync/internal/server/core"
)

const (
	basePath = "/api/v1/chess"

	// Above the server's long-poll wait so a held request is not cut short
	defaultTimeout = 35 * time.Second
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrStale        = errors.New("stale state")
)

// Error is a non-2xx response from the server
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	return msg
}

// Is lets callers match on ErrUnauthorized and ErrStale
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrStale:
		return e.Status == http.StatusConflict
	}
	return false
}

type Client struct {
	HTTPClient *http.Client

	mu      sync.RWMutex
	baseURL string
	token   string
	trace   io.Writer
	verbose bool
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// SetBaseURL updates the API base URL for the client
func (c *Client) SetBaseURL(url string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(url, "/")
	c.mu.Unlock()
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetTrace prints each request and response status to w; nil disables it.
// With verbose, bodies are printed as indented JSON.
func (c *Client) SetTrace(w io.Writer, verbose bool) {
	c.mu.Lock()
	c.trace, c.verbose = w, verbose
	c.mu.Unlock()
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	c.mu.RLock()
	url, token, trace, verbose := c.baseURL+path, c.token, c.trace, c.verbose
	c.mu.RUnlock()

	var bodyReader io.Reader
	var jsonData []byte
	if body != nil {
		var err error
		if jsonData, err = json.Marshal(body); err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if trace != nil {
		fmt.Fprintf(trace, "%s[API] %s %s%s\n", display.Blue, method, path, display.Reset)
		if len(jsonData) > 0 {
			printBody(trace, "Request Body", jsonData, verbose)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if trace != nil {
		statusColor := display.Green
		if resp.StatusCode >= 400 {
			statusColor = display.Red
		}
		fmt.Fprintf(trace, "%s[%d %s]%s\n", statusColor, resp.StatusCode, http.StatusText(resp.StatusCode), display.Reset)
		if verbose && len(respBody) > 0 {
			printBody(trace, "Response Body", respBody, true)
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		var errResp core.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = errResp.Code, errResp.Error, errResp.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func printBody(w io.Writer, title string, raw []byte, pretty bool) {
	if !pretty {
		fmt.Fprintf(w, "%s%s%s\n", display.Blue, raw, display.Reset)
		return
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Fprintf(w, "%s%s:%s\n%s\n", display.Cyan, title, display.Reset, raw)
		return
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintf(w, "%s%s:%s\n%s\n", display.Cyan, title, display.Reset, out)
}

// API Methods

func (c *Client) Health(ctx context.Context) (*core.HealthResponse, error) {
	var resp core.HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp)
	return &resp, err
}

func (c *Client) GetState(ctx context.Context) (*core.StateResponse, error) {
	var resp core.StateResponse
	err := c.doRequest(ctx, http.MethodGet, basePath+"/state", nil, &resp)
	return &resp, err
}

// WaitState long-polls until the game moves past version or the server's
// wait timeout passes, in which case the unchanged state is returned.
func (c *Client) WaitState(ctx context.Context, version int64) (*core.StateResponse, error) {
	var resp core.StateResponse
	path := basePath + "/state?wait=true&version=" + strconv.FormatInt(version, 10)
	err := c.doRequest(ctx, http.MethodGet, path, nil, &resp)
	return &resp, err
}

func (c *Client) GetBoard(ctx context.Context) (*core.BoardResponse, error) {
	var resp core.BoardResponse
	err := c.doRequest(ctx, http.MethodGet, basePath+"/board", nil, &resp)
	return &resp, err
}

func (c *Client) SubmitMove(ctx context.Context, req core.MoveRequest) (*core.MoveResponse, error) {
	var resp core.MoveResponse
	err := c.doRequest(ctx, http.MethodPost, basePath+"/move", req, &resp)
	return &resp, err
}

// AdminMove needs a token from Login
func (c *Client) AdminMove(ctx context.Context, req core.AdminMoveRequest) (*core.MoveResponse, error) {
	var resp core.MoveResponse
	err := c.doRequest(ctx, http.MethodPut, basePath+"/move", req, &resp)
	return &resp, err
}

func (c *Client) Reset(ctx context.Context) (*core.MoveResponse, error) {
	return c.AdminMove(ctx, core.AdminMoveRequest{Reset: true})
}

// Login stores the returned token for later admin calls
func (c *Client) Login(ctx context.Context, password string) (*core.LoginResponse, error) {
	var resp core.LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/admin/login", core.LoginRequest{Password: password}, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

func (c *Client) Verify(ctx context.Context, token string) (*core.VerifyResponse, error) {
	var resp core.VerifyResponse
	err := c.doRequest(ctx, http.MethodPost, basePath+"/admin/verify", core.VerifyRequest{Token: token}, &resp)
	return &resp, err
}

// Logout revokes the session server side and forgets the token
func (c *Client) Logout(ctx context.Context) error {
	err := c.doRequest(ctx, http.MethodPost, basePath+"/admin/logout", nil, nil)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		c.SetToken("")
	}
	return err
}

// RawRequest performs a raw HTTP request for debugging purposes
func (c *Client) RawRequest(ctx context.Context, method, path string, body string) (json.RawMessage, error) {
	var bodyData any
	if body != "" {
		if err := json.Unmarshal([]byte(body), &bodyData); err != nil {
			bodyData = body
		}
	}
	var out json.RawMessage
	err := c.doRequest(ctx, method, path, bodyData, &out)
	return out, err
}
