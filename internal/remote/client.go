package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/dto"
	"github.com/paper-piper/Dini/pkg/logger"
)

const sessionHeader = "Session-Id"

type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Client speaks the wallet service's HTTP contract. Transport failures are
// reported as domain.ErrNetwork and 401 responses as domain.ErrUnauthorized.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing server address: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server address %q must be absolute", baseURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local development server
	}

	return &Client{
		baseURL: u,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	return c.authenticate(ctx, "login", username, password)
}

func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	return c.authenticate(ctx, "register", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, path, "", dto.Auth{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	defer closeBody(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", domain.ErrIncorrectCredentials
	case resp.StatusCode == http.StatusConflict:
		return "", domain.ErrUserExists
	case !success(resp.StatusCode):
		return "", fmt.Errorf("%s: %w", path, statusError(resp))
	}

	var session dto.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", errors.Join(domain.ErrNetwork, fmt.Errorf("error decoding %s response: %w", path, err))
	}
	if session.SessionID == "" {
		return "", errors.Join(domain.ErrNetwork, fmt.Errorf("%s response without session id", path))
	}

	return session.SessionID, nil
}

func (c *Client) Logout(ctx context.Context, sessionID string) error {
	resp, err := c.do(ctx, http.MethodPost, "logout", sessionID, dto.Session{SessionID: sessionID})
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)

	if !success(resp.StatusCode) {
		return fmt.Errorf("logout: %w", statusError(resp))
	}
	return nil
}

// Heartbeat proves the session is alive. Any non-2xx answer means the server
// no longer accepts the session and is reported as domain.ErrUnauthorized.
func (c *Client) Heartbeat(ctx context.Context, sessionID string) error {
	resp, err := c.do(ctx, http.MethodPost, "heartbeat", sessionID, nil)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)

	if !success(resp.StatusCode) {
		return fmt.Errorf("heartbeat: %w: status %d", domain.ErrUnauthorized, resp.StatusCode)
	}
	return nil
}

func (c *Client) Transactions(ctx context.Context, sessionID string) ([]domain.Transaction, error) {
	resp, err := c.do(ctx, http.MethodGet, "transactions", sessionID, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	if !success(resp.StatusCode) {
		return nil, fmt.Errorf("get transactions: %w", statusError(resp))
	}

	var records []dto.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, errors.Join(domain.ErrNetwork, fmt.Errorf("error decoding transactions: %w", err))
	}

	txs := make([]domain.Transaction, 0, len(records))
	for _, record := range records {
		tx, err := record.ToDomain()
		if err != nil {
			logger.Log.Warn("skipping malformed transaction", logger.String("id", record.ID), logger.Error(err))
			continue
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// CreateTransaction submits a pending draft. A 4xx/5xx answer other than 401
// is reported as domain.ErrRejected.
func (c *Client) CreateTransaction(ctx context.Context, sessionID string, draft domain.Draft) (domain.Transaction, error) {
	resp, err := c.do(ctx, http.MethodPost, "transactions", sessionID, dto.FromDraft(draft))
	if err != nil {
		return domain.Transaction{}, err
	}
	defer closeBody(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.Transaction{}, fmt.Errorf("create transaction: %w", domain.ErrUnauthorized)
	}
	if !success(resp.StatusCode) {
		return domain.Transaction{}, fmt.Errorf("create transaction: %w: %s", domain.ErrRejected, readMessage(resp))
	}

	var record dto.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return domain.Transaction{}, errors.Join(domain.ErrNetwork, fmt.Errorf("error decoding created transaction: %w", err))
	}

	tx, err := record.ToDomain()
	if err != nil {
		return domain.Transaction{}, errors.Join(domain.ErrNetwork, err)
	}
	return tx, nil
}

func (c *Client) ConnectedUsers(ctx context.Context, sessionID string) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "connected-users", sessionID, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	if !success(resp.StatusCode) {
		return nil, fmt.Errorf("connected users: %w", statusError(resp))
	}

	var users []string
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, errors.Join(domain.ErrNetwork, fmt.Errorf("error decoding connected users: %w", err))
	}
	return users, nil
}

func (c *Client) do(ctx context.Context, method, path, sessionID string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Join(domain.ErrNetwork, fmt.Errorf("%s /%s: %w", method, path, err))
	}
	return resp, nil
}

func success(code int) bool {
	return code >= 200 && code < 300
}

// statusError classifies a failed response: 401 is an authorization failure,
// anything else is treated as a transient server problem.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	return fmt.Errorf("%w: status %d: %s", domain.ErrNetwork, resp.StatusCode, readMessage(resp))
}

func readMessage(resp *http.Response) string {
	msg, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return http.StatusText(resp.StatusCode)
	}
	return string(bytes.TrimSpace(msg))
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		logger.Log.Error("error while closing response body", logger.Error(err))
	}
}
