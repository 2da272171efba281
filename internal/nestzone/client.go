package nestzone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"nestzone-clara-backend/internal/logging"
)

// ErrNotConfigured is returned when no backend URL was provided.
var ErrNotConfigured = errors.New("nestzone: backend URL not configured")

// Client talks to the Nestzone REST backend. Calls that act on behalf of a
// logged-in visitor take the backend token and send it as a bearer credential.
type Client struct {
	httpClient *http.Client
	baseAPI    string
	log        *zap.Logger
}

func NewClient(baseAPI string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseAPI:    strings.TrimRight(baseAPI, "/"),
		log:        log,
	}
}

// ---- Helpers ----

func (c *Client) clientFor(ctx context.Context, token string) *http.Client {
	if token == "" {
		return c.httpClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	hc.Timeout = c.httpClient.Timeout
	return hc
}

func (c *Client) do(ctx context.Context, token, method, path string, in, out any) error {
	if c.baseAPI == "" {
		return ErrNotConfigured
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("nestzone %s: encode body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseAPI+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := c.clientFor(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("nestzone %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("nestzone call",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("token", logging.Redact(token)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("nestzone %s: read body: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Path: path, Message: errorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("nestzone %s: decode: %w", path, err)
	}
	return nil
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if m := strings.TrimSpace(body.Message); m != "" {
			return m
		}
		return strings.TrimSpace(body.Error)
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// ---- Auth ----

func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, "", http.MethodPost, "/register", reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	in := map[string]string{"username": username, "password": password}
	var out AuthResponse
	if err := c.do(ctx, "", http.MethodPost, "/authenticate", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	var out envelope[UserInfo]
	if err := c.do(ctx, token, http.MethodGet, "/person/info", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) Logout(ctx context.Context, token string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, token, http.MethodPost, "/logout", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Properties ----

func (c *Client) SearchProperties(ctx context.Context, filter PropertyFilter) ([]Property, error) {
	var out envelope[page]
	if err := c.do(ctx, "", http.MethodPost, "/properties/filter", filter, &out); err != nil {
		return nil, err
	}
	return out.Data.Content, nil
}

func (c *Client) SearchUserProperties(ctx context.Context, token string, filter PropertyFilter) ([]Property, error) {
	var out envelope[page]
	if err := c.do(ctx, token, http.MethodPost, "/properties/filter/user", filter, &out); err != nil {
		return nil, err
	}
	return out.Data.Content, nil
}

func (c *Client) GetProperty(ctx context.Context, token string, id ID) (*Property, error) {
	var out envelope[Property]
	path := "/properties/getOne?id=" + url.QueryEscape(string(id))
	if err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) BookmarkProperty(ctx context.Context, token string, b Bookmark) (string, error) {
	var out envelope[json.RawMessage]
	if err := c.do(ctx, token, http.MethodPost, "/properties/bookmark", b, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) DeleteProperty(ctx context.Context, token string, id ID) (string, error) {
	var out envelope[json.RawMessage]
	path := "/properties?id=" + url.QueryEscape(string(id))
	if err := c.do(ctx, token, http.MethodDelete, path, nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ---- Locations ----

func (c *Client) SearchLocations(ctx context.Context, term string) ([]Location, error) {
	var out envelope[[]Location]
	path := "/location?searchTerm=" + url.QueryEscape(term)
	if err := c.do(ctx, "", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// FindLocationID returns the id of the location whose name equals name,
// ignoring case.
func FindLocationID(locs []Location, name string) (ID, bool) {
	for _, l := range locs {
		if strings.EqualFold(strings.TrimSpace(l.Name), name) && l.ID != "" {
			return l.ID, true
		}
	}
	return "", false
}
